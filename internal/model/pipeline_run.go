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

// Package model holds the data types persisted by the server: pipeline
// runs and the containers a run's platform allocates.
package model

import "time"

// RunState is the lifecycle state of a PipelineRun.
type RunState string

const (
	RunInitial  RunState = "initial"
	RunQueued   RunState = "queued"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunFaulted  RunState = "faulted"
)

// IsTerminal reports whether s is a state no run ever leaves.
func (s RunState) IsTerminal() bool {
	return s == RunFinished || s == RunFaulted
}

// PipelineRun is the persisted record of one pipeline execution. The server
// creates it as RunInitial on POST /run; the worker mutates it to running
// on start and to a terminal state on exit; the supervisor may force it to
// RunFaulted if the worker's process exits without writing a terminal
// state itself.
type PipelineRun struct {
	ID            string
	Name          string
	State         RunState
	User          string
	StartDateTime time.Time
	EndDateTime   *time.Time
}

// Start transitions the run to RunRunning and stamps the start time.
func (r *PipelineRun) Start(now time.Time) {
	r.State = RunRunning
	r.StartDateTime = now
}

// Finish transitions the run to a terminal state and stamps the end time.
// state must be RunFinished or RunFaulted.
func (r *PipelineRun) Finish(state RunState, now time.Time) {
	r.State = state
	r.EndDateTime = &now
}

// ContainerState is the lifecycle state of a PipelineRunContainer.
type ContainerState string

const (
	ContainerActive    ContainerState = "active"
	ContainerKeepAlive ContainerState = "keep_alive"
	ContainerFaulted   ContainerState = "faulted"
	ContainerRemoved   ContainerState = "removed"
)

// PipelineRunContainer is the persisted record of a container (or
// equivalent platform resource) allocated for a run. Created when the
// platform allocates it; updated by the Run Context during cleanup.
//
// Invariant: every row in ContainerActive state has a non-empty
// ContainerID reachable on the platform that created it. On orderly
// worker exit every row not left ContainerKeepAlive must reach
// ContainerRemoved or ContainerFaulted.
type PipelineRunContainer struct {
	ID          string
	RunID       string
	ContainerID string
	State       ContainerState
}
