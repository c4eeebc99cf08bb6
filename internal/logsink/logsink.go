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

// Package logsink implements the append-only per-run log file that the
// worker writes to and any number of observers tail by polling. The file
// is the single source of truth; no in-memory buffer backs it.
package logsink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Sink is a single run's append-only log file. Sink is safe for
// concurrent Write calls from a single writer goroutine, which is the
// only writer the orchestration plane ever has; readers never touch a
// Sink directly, they open the underlying file themselves (see Reader).
type Sink struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
	// colorize is true only when the sink wraps an interactive stream
	// (e.g. `bld run` without --detach); file-backed sinks never colorize.
	colorize bool
}

// Path returns the log file path for a run under logsDir.
func Path(logsDir, runID string) string {
	return filepath.Join(logsDir, runID)
}

// Open creates the log file for runID under logsDir if it does not exist
// (an existing file is kept, not truncated) and returns a Sink that
// appends to it.
func Open(logsDir, runID string, logger *slog.Logger) (*Sink, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logsink: create logs dir: %w", err)
	}

	f, err := os.OpenFile(Path(logsDir, runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logsink: open log file: %w", err)
	}

	return &Sink{file: f, logger: logger}, nil
}

// NewInteractive wraps an already-open, color-capable stream (used by
// `bld run` without --detach, which tees to both the log file and stdout).
func NewInteractive(f *os.File, logger *slog.Logger) *Sink {
	return &Sink{file: f, logger: logger, colorize: true}
}

// Write appends line + "\n" to the sink. A write failure is logged and
// swallowed: the log is observational, never authoritative, and must
// never abort a pipeline run.
func (s *Sink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeRaw(line)
}

// Info writes a line, colorized when the sink is interactive.
func (s *Sink) Info(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeRaw(s.style(infoStyle, line))
}

// Error writes a line, colorized when the sink is interactive.
func (s *Sink) Error(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeRaw(s.style(errorStyle, line))
}

func (s *Sink) style(style lipgloss.Style, line string) string {
	if !s.colorize {
		return line
	}
	return style.Render(line)
}

func (s *Sink) writeRaw(line string) {
	if _, err := s.file.WriteString(line + "\n"); err != nil {
		if s.logger != nil {
			s.logger.Error("log sink write failed", "error", err)
		}
	}
}

// Close closes the underlying file. The file itself is never deleted by
// the core.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
