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

// Package server is bld's HTTP intake: it accepts POST /run and
// POST /stop, forwards them to the supervisor over a single long-lived
// control-channel WebSocket, serves the pushed-pipeline CRUD surface,
// and streams run logs to CLI observers (§4.E, §6).
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kani-maki-gang/bld/internal/orchestration/proto"
)

// pingInterval/pongTimeout match the 1s/10s cadence named in §7's
// liveness properties.
const (
	pingInterval = time.Second
	pongTimeout  = 10 * time.Second
)

// Link is the server's end of the supervisor control channel: exactly
// one supervisor connects at a time. Frames sent while disconnected are
// buffered and replayed on reconnect, so a `/run` caller's 200 response
// is never blocked on the supervisor being momentarily unreachable.
type Link struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	pending     []*proto.Frame
	unacked     map[string]*proto.Frame
	supervisor  int // pid reported by the last WhoAmI
	onCompleted func(runID, state string)
}

// NewLink builds a Link. onCompleted is invoked whenever the supervisor
// reports a run reached a terminal state.
func NewLink(onCompleted func(runID, state string)) *Link {
	return &Link{
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:      slog.Default().With(slog.String("component", "server.link")),
		unacked:     make(map[string]*proto.Frame),
		onCompleted: onCompleted,
	}
}

// ServeHTTP upgrades the incoming request to the control-channel
// WebSocket. Only one supervisor connection is accepted at a time; a
// reconnect replaces the previous connection.
func (l *Link) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("supervisor upgrade failed", "error", err)
		return
	}

	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.conn = conn
	replay := append([]*proto.Frame{}, l.pending...)
	l.pending = nil
	l.mu.Unlock()

	l.logger.Info("supervisor connected", "remote", r.RemoteAddr)

	for _, f := range replay {
		l.writeFrame(conn, f)
	}

	go l.readLoop(conn)
}

// Send delivers a frame to the connected supervisor, buffering it for
// replay if no supervisor is currently connected.
func (l *Link) Send(f *proto.Frame) {
	l.mu.Lock()
	conn := l.conn
	l.unacked[f.ID] = f
	l.mu.Unlock()

	if conn == nil {
		l.mu.Lock()
		l.pending = append(l.pending, f)
		l.mu.Unlock()
		return
	}

	if err := l.writeFrame(conn, f); err != nil {
		l.mu.Lock()
		l.pending = append(l.pending, f)
		l.mu.Unlock()
	}
}

func (l *Link) writeFrame(conn *websocket.Conn, f *proto.Frame) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (l *Link) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go l.pingLoop(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.logger.Info("supervisor disconnected", "error", err)
			l.mu.Lock()
			if l.conn == conn {
				l.conn = nil
			}
			l.mu.Unlock()
			return
		}

		f, err := proto.Parse(data)
		if err != nil {
			l.logger.Warn("malformed frame from supervisor", "error", err)
			continue
		}
		l.handleFrame(f)
	}
}

func (l *Link) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongTimeout)); err != nil {
				return
			}
		}
	}
}

func (l *Link) handleFrame(f *proto.Frame) {
	switch f.Type {
	case proto.FrameAck:
		l.mu.Lock()
		delete(l.unacked, f.InReplyTo)
		l.mu.Unlock()
	case proto.FrameWhoAmI:
		l.mu.Lock()
		l.supervisor = f.PID
		l.mu.Unlock()
		l.logger.Info("supervisor identified", "pid", f.PID)
	case proto.FrameCompleted:
		if l.onCompleted != nil {
			l.onCompleted(f.RunID, f.State)
		}
	default:
		l.logger.Warn("unexpected frame from supervisor", "type", f.Type)
	}
}

// Connected reports whether a supervisor is currently attached.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// ErrNoSupervisor signals that no supervisor is attached. Nothing in this
// package returns it: Send buffers frames while disconnected, and
// GET /ha/status reports the state as supervisor_connected=false.
var ErrNoSupervisor = errors.New("server: no supervisor connected")

// Shutdown closes the current connection, if any.
func (l *Link) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
		time.Now().Add(time.Second))
	err := l.conn.Close()
	l.conn = nil
	return err
}
