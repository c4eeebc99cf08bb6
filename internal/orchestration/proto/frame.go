// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package proto defines the JSON frames exchanged over the long-lived
// server<->supervisor WebSocket, the sole control channel between the
// two (§4.E). There is no request/response RPC layer here: frames are
// fire-and-forget, acknowledged explicitly, and replayed on reconnect.
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FrameType discriminates the frame payload, mirroring the tagged
// `{type: "..."}` wire shape named in §6.
type FrameType string

const (
	// FrameAck acknowledges receipt of the frame named by InReplyTo.
	FrameAck FrameType = "Ack"

	// FrameEnqueue is sent server->supervisor to start a run.
	FrameEnqueue FrameType = "Enqueue"

	// FrameStop is sent server->supervisor to cancel a run.
	FrameStop FrameType = "Stop"

	// FrameWhoAmI is sent supervisor->server on connect, identifying the
	// supervisor's process for operator visibility.
	FrameWhoAmI FrameType = "WhoAmI"

	// FrameCompleted is sent supervisor->server when a worker it spawned
	// reaches a terminal state, so the server can stop expecting a log
	// update for that run without polling the database.
	FrameCompleted FrameType = "Completed"
)

// Frame is the single envelope every control-channel message uses. Only
// the fields relevant to Type are populated; the rest are the JSON zero
// value and omitted on the wire.
type Frame struct {
	ID   string    `json:"id"`
	Type FrameType `json:"type"`

	// Enqueue
	Pipeline    string            `json:"pipeline,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`

	// WhoAmI
	PID int `json:"pid,omitempty"`

	// Completed
	State string `json:"state,omitempty"`

	// Ack
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// NewEnqueue builds an Enqueue frame for a fresh run.
func NewEnqueue(runID, pipeline string, variables, environment map[string]string) *Frame {
	return &Frame{
		ID:          uuid.NewString(),
		Type:        FrameEnqueue,
		Pipeline:    pipeline,
		RunID:       runID,
		Variables:   variables,
		Environment: environment,
	}
}

// NewStop builds a Stop frame targeting runID.
func NewStop(runID string) *Frame {
	return &Frame{ID: uuid.NewString(), Type: FrameStop, RunID: runID}
}

// NewWhoAmI builds the supervisor's identification frame sent on connect.
func NewWhoAmI(pid int) *Frame {
	return &Frame{ID: uuid.NewString(), Type: FrameWhoAmI, PID: pid}
}

// NewCompleted builds a Completed frame for a run the supervisor just
// reaped, reporting its terminal state.
func NewCompleted(runID, state string) *Frame {
	return &Frame{ID: uuid.NewString(), Type: FrameCompleted, RunID: runID, State: state}
}

// NewAck acknowledges the frame identified by id.
func NewAck(id string) *Frame {
	return &Frame{ID: uuid.NewString(), Type: FrameAck, InReplyTo: id}
}

// Validate checks that a decoded frame carries the fields its Type requires.
func (f *Frame) Validate() error {
	switch f.Type {
	case FrameEnqueue:
		if f.RunID == "" || f.Pipeline == "" {
			return fmt.Errorf("proto: Enqueue frame missing run_id or pipeline")
		}
	case FrameStop:
		if f.RunID == "" {
			return fmt.Errorf("proto: Stop frame missing run_id")
		}
	case FrameCompleted:
		if f.RunID == "" || f.State == "" {
			return fmt.Errorf("proto: Completed frame missing run_id or state")
		}
	case FrameAck:
		if f.InReplyTo == "" {
			return fmt.Errorf("proto: Ack frame missing in_reply_to")
		}
	case FrameWhoAmI:
		// PID 0 is a valid (if unlikely) value; nothing else to check.
	default:
		return fmt.Errorf("proto: unknown frame type %q", f.Type)
	}
	return nil
}

// Marshal encodes the frame to JSON.
func (f *Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Parse decodes and validates a frame from JSON.
func Parse(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("proto: invalid frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
