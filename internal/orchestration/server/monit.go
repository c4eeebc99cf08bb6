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

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kani-maki-gang/bld/internal/logsink"
)

// tailPollInterval is how often a ws-monit/ws-exec connection re-polls
// the log file for new lines; each connection's Reader resumes from its
// own offset, so only lines appended since the last poll are sent.
const tailPollInterval = 250 * time.Millisecond

// handleMonit streams a completed or in-progress run's log, one line per
// WebSocket text message, until the run reaches a terminal state.
func (s *Server) handleMonit(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/ws-monit/")
	s.streamLog(w, r, runID)
}

// handleExec is identical to handleMonit: both tail the same log file,
// but ws-exec is the connection `bld run` (without --detach) opens
// immediately after submitting, while ws-monit is opened later by
// `bld monit` against an already-running or finished run.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/ws-exec/")
	s.streamLog(w, r, runID)
}

func (s *Server) streamLog(w http.ResponseWriter, r *http.Request, runID string) {
	if runID == "" {
		http.Error(w, "run id required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	reader := logsink.NewReader(s.logsDir, runID)
	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		lines, err := reader.Poll()
		if err != nil {
			return
		}
		for _, line := range lines {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}

		run, err := s.runs.GetRun(r.Context(), runID)
		if err != nil {
			return
		}
		if run.State.IsTerminal() && len(lines) == 0 {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.State)),
				time.Now().Add(time.Second))
			return
		}
	}
}
