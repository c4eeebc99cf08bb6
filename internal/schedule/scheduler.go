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

package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kani-maki-gang/bld/pkg/pipeline"
)

// Submitter is the subset of *server.Server a cron trigger needs: the same
// entrypoint the `POST /run` handler submits through, so a scheduled run
// is indistinguishable from an interactive one once queued.
type Submitter interface {
	SubmitRun(ctx context.Context, pipelineName, user string, variables, environment map[string]string) (string, error)
}

// PipelineStore is the subset of internal/fs.ServerStore the scheduler
// needs to discover pipelines carrying a `cron` field.
type PipelineStore interface {
	List() ([]string, error)
	Read(name string) (string, error)
}

// job is one scheduled pipeline.
type job struct {
	Name        string
	Cron        string
	Variables   map[string]string
	Environment map[string]string

	expr       *CronExpr
	nextRun    time.Time
	lastRun    *time.Time
	runCount   int64
	errorCount int64
}

// Scheduler re-submits every pipeline whose document sets a non-empty
// `cron` field, on that field's own schedule. It discovers jobs by polling
// the pipeline store rather than requiring an explicit registration call,
// so a `push`'d pipeline with a `cron` field is picked up without a
// separate scheduling API (there is no scheduling API — §1 lists the cron
// surface itself as out of scope, only this re-submission mechanism is in).
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[string]*job
	pipelines PipelineStore
	submitter Submitter
	logger    *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Scheduler. Call Refresh once before Start to seed it from
// the pipelines already pushed to the store.
func New(pipelines PipelineStore, submitter Submitter) *Scheduler {
	return &Scheduler{
		jobs:      make(map[string]*job),
		pipelines: pipelines,
		submitter: submitter,
		logger:    slog.Default().With(slog.String("component", "schedule")),
	}
}

// Refresh re-scans the pipeline store, adding newly cron-bearing
// pipelines, updating ones whose cron expression changed, and dropping
// ones that were removed or had their cron field cleared.
func (s *Scheduler) Refresh() error {
	names, err := s.pipelines.List()
	if err != nil {
		return fmt.Errorf("schedule: list pipelines: %w", err)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		raw, err := s.pipelines.Read(name)
		if err != nil {
			s.logger.Warn("failed to read pipeline during refresh", "pipeline", name, "error", err)
			continue
		}
		doc, err := pipeline.Parse([]byte(raw))
		if err != nil || doc.Cron == "" {
			continue
		}
		seen[name] = true
		if err := s.upsert(name, doc.Cron, doc.Variables, doc.Environment); err != nil {
			s.logger.Warn("invalid cron expression", "pipeline", name, "cron", doc.Cron, "error", err)
		}
	}

	s.mu.Lock()
	for name := range s.jobs {
		if !seen[name] {
			delete(s.jobs, name)
		}
	}
	s.mu.Unlock()

	return nil
}

func (s *Scheduler) upsert(name, cron string, variables, environment map[string]string) error {
	expr, err := ParseCron(cron)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[name]
	if ok && existing.Cron == cron {
		existing.Variables = variables
		existing.Environment = environment
		return nil
	}

	s.jobs[name] = &job{
		Name:        name,
		Cron:        cron,
		Variables:   variables,
		Environment: environment,
		expr:        expr,
		nextRun:     expr.Next(time.Now().UTC()),
	}
	return nil
}

// Start runs the scheduler's tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			if err := s.Refresh(); err != nil {
				s.logger.Warn("refresh failed", "error", err)
			}
			s.tick(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*job, 0)
	for _, j := range s.jobs {
		if !now.Before(j.nextRun) {
			due = append(due, j)
			j.nextRun = j.expr.Next(now)
			j.lastRun = &now
			j.runCount++
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		go s.trigger(ctx, j)
	}
}

func (s *Scheduler) trigger(ctx context.Context, j *job) {
	log := s.logger.With(slog.String("pipeline", j.Name), slog.String("cron", j.Cron))

	runID, err := s.submitter.SubmitRun(ctx, j.Name, "scheduler", j.Variables, j.Environment)
	if err != nil {
		log.Error("scheduled submission failed", "error", err)
		s.mu.Lock()
		j.errorCount++
		s.mu.Unlock()
		return
	}
	log.Info("scheduled run submitted", "run_id", runID)
}

// Status reports a scheduled job's observable state without exposing the
// scheduler's internals. It is returned by ListStatus; no HTTP endpoint
// or CLI command reports it.
type Status struct {
	Pipeline   string     `json:"pipeline"`
	Cron       string     `json:"cron"`
	NextRun    time.Time  `json:"next_run"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	RunCount   int64      `json:"run_count"`
	ErrorCount int64      `json:"error_count"`
}

// ListStatus returns the status of every currently scheduled pipeline.
func (s *Scheduler) ListStatus() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, Status{
			Pipeline:   j.Name,
			Cron:       j.Cron,
			NextRun:    j.nextRun,
			LastRun:    j.lastRun,
			RunCount:   j.runCount,
			ErrorCount: j.errorCount,
		})
	}
	return out
}
