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

package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Edit describes an out-of-band change to a pipeline source file,
// surfaced for dev-convenience logging — bld never reloads a running
// pipeline, it only logs that the on-disk source has drifted.
type Edit struct {
	Pipeline string
	Op       string
}

// Watcher logs out-of-band edits to pipelines under a store's directory
// while a run referencing them is in flight.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	events  chan Edit
	logger  *slog.Logger
}

// NewWatcher watches dir (a ServerStore's root) for edits to its .yaml
// pipeline files.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fs: new watcher: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("fs: abs path: %w", err)
	}

	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("fs: watch %s: %w", abs, err)
	}

	return &Watcher{
		dir:     abs,
		watcher: fsw,
		events:  make(chan Edit, 32),
		logger:  slog.Default().With(slog.String("component", "fs.watcher"), slog.String("dir", abs)),
	}, nil
}

// Events returns the channel edits are published on.
func (w *Watcher) Events() <-chan Edit {
	return w.events
}

// Run consumes fsnotify events until ctx is cancelled. Intended to be
// run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".yaml") {
		return
	}

	var op string
	switch {
	case ev.Op&fsnotify.Write != 0:
		op = "modified"
	case ev.Op&fsnotify.Create != 0:
		op = "created"
	case ev.Op&fsnotify.Remove != 0:
		op = "deleted"
	case ev.Op&fsnotify.Rename != 0:
		op = "renamed"
	default:
		return
	}

	name := strings.TrimSuffix(filepath.Base(ev.Name), ".yaml")
	edit := Edit{Pipeline: name, Op: op}

	w.logger.Info("pipeline source changed out of band", "pipeline", name, "op", op)

	select {
	case w.events <- edit:
	default:
		w.logger.Warn("watcher event channel full, dropping", "pipeline", name)
	}
}
