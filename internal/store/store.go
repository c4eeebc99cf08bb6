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

// Package store persists PipelineRun and PipelineRunContainer rows in a
// local sqlite database.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/kani-maki-gang/bld/internal/blderr"
	"github.com/kani-maki-gang/bld/internal/model"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed repository for PipelineRun and
// PipelineRunContainer rows. It is the server's view of run state; the
// replicated KV (package kv) fronts it in a future HA deployment, but a
// single server talks to it directly.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_run (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	state TEXT NOT NULL,
	user TEXT NOT NULL,
	start_date_time DATETIME NOT NULL,
	end_date_time DATETIME
);

CREATE TABLE IF NOT EXISTS pipeline_run_container (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES pipeline_run(id),
	container_id TEXT NOT NULL,
	state TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_run_name ON pipeline_run(name);
CREATE INDEX IF NOT EXISTS idx_pipeline_run_container_run_id ON pipeline_run_container(run_id);
`

// Open opens (creating if absent) the sqlite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	const op = "store.Open"

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, blderr.New(blderr.Io, op, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, blderr.New(blderr.Io, op, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, avoids SQLITE_BUSY

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, blderr.New(blderr.Internal, op, err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new PipelineRun row with the state set on run.
func (s *Store) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	const op = "store.CreateRun"
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_run (id, name, state, user, start_date_time, end_date_time) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.State, run.User, run.StartDateTime, nullTime(run.EndDateTime),
	)
	if err != nil {
		return blderr.New(blderr.Internal, op, err)
	}
	return nil
}

// UpdateRunState sets a run's state and, for a transition into RunRunning,
// its start time, or into a terminal state, its end time.
func (s *Store) UpdateRunState(ctx context.Context, runID string, state model.RunState, at time.Time) error {
	const op = "store.UpdateRunState"

	var err error
	switch {
	case state == model.RunRunning:
		_, err = s.db.ExecContext(ctx,
			`UPDATE pipeline_run SET state = ?, start_date_time = ? WHERE id = ?`, state, at, runID)
	case state.IsTerminal():
		_, err = s.db.ExecContext(ctx,
			`UPDATE pipeline_run SET state = ?, end_date_time = ? WHERE id = ?`, state, at, runID)
	default:
		_, err = s.db.ExecContext(ctx, `UPDATE pipeline_run SET state = ? WHERE id = ?`, state, runID)
	}
	if err != nil {
		return blderr.New(blderr.Internal, op, err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	const op = "store.GetRun"
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, state, user, start_date_time, end_date_time FROM pipeline_run WHERE id = ?`, runID)
	return scanRun(row, op)
}

// GetRunsByName returns every run of a given pipeline name, most recent first.
func (s *Store) GetRunsByName(ctx context.Context, name string, limit int) ([]*model.PipelineRun, error) {
	const op = "store.GetRunsByName"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, state, user, start_date_time, end_date_time FROM pipeline_run WHERE name = ? ORDER BY start_date_time DESC LIMIT ?`,
		name, limitOrAll(limit))
	if err != nil {
		return nil, blderr.New(blderr.Internal, op, err)
	}
	defer rows.Close()
	return scanRuns(rows, op)
}

// History returns runs, optionally filtered by pipeline name and state,
// most recent first, capped at limit (0 means unlimited).
func (s *Store) History(ctx context.Context, name string, states []model.RunState, limit int) ([]*model.PipelineRun, error) {
	const op = "store.History"

	query := `SELECT id, name, state, user, start_date_time, end_date_time FROM pipeline_run WHERE 1=1`
	args := []any{}

	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	if len(states) > 0 {
		query += ` AND state IN (` + placeholders(len(states)) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_date_time DESC LIMIT ?`
	args = append(args, limitOrAll(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, blderr.New(blderr.Internal, op, err)
	}
	defer rows.Close()
	return scanRuns(rows, op)
}

// LastOverall returns the most recently started run across all pipelines.
func (s *Store) LastOverall(ctx context.Context) (*model.PipelineRun, error) {
	const op = "store.LastOverall"
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, state, user, start_date_time, end_date_time FROM pipeline_run ORDER BY start_date_time DESC LIMIT 1`)
	return scanRun(row, op)
}

// CreateContainer inserts a new PipelineRunContainer row.
func (s *Store) CreateContainer(ctx context.Context, c *model.PipelineRunContainer) error {
	const op = "store.CreateContainer"
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_run_container (id, run_id, container_id, state) VALUES (?, ?, ?, ?)`,
		c.ID, c.RunID, c.ContainerID, c.State)
	if err != nil {
		return blderr.New(blderr.Internal, op, err)
	}
	return nil
}

// UpdateContainerState sets a container row's state.
func (s *Store) UpdateContainerState(ctx context.Context, id string, state model.ContainerState) error {
	const op = "store.UpdateContainerState"
	_, err := s.db.ExecContext(ctx, `UPDATE pipeline_run_container SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return blderr.New(blderr.Internal, op, err)
	}
	return nil
}

// ContainersForRun returns every container row belonging to runID.
func (s *Store) ContainersForRun(ctx context.Context, runID string) ([]*model.PipelineRunContainer, error) {
	const op = "store.ContainersForRun"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, container_id, state FROM pipeline_run_container WHERE run_id = ?`, runID)
	if err != nil {
		return nil, blderr.New(blderr.Internal, op, err)
	}
	defer rows.Close()

	var out []*model.PipelineRunContainer
	for rows.Next() {
		c := &model.PipelineRunContainer{}
		if err := rows.Scan(&c.ID, &c.RunID, &c.ContainerID, &c.State); err != nil {
			return nil, blderr.New(blderr.Internal, op, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRun(row *sql.Row, op string) (*model.PipelineRun, error) {
	run := &model.PipelineRun{}
	var end sql.NullTime
	if err := row.Scan(&run.ID, &run.Name, &run.State, &run.User, &run.StartDateTime, &end); err != nil {
		if err == sql.ErrNoRows {
			return nil, blderr.New(blderr.PipelineNotFound, op, err)
		}
		return nil, blderr.New(blderr.Internal, op, err)
	}
	if end.Valid {
		run.EndDateTime = &end.Time
	}
	return run, nil
}

func scanRuns(rows *sql.Rows, op string) ([]*model.PipelineRun, error) {
	var out []*model.PipelineRun
	for rows.Next() {
		run := &model.PipelineRun{}
		var end sql.NullTime
		if err := rows.Scan(&run.ID, &run.Name, &run.State, &run.User, &run.StartDateTime, &end); err != nil {
			return nil, blderr.New(blderr.Internal, op, err)
		}
		if end.Valid {
			run.EndDateTime = &end.Time
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1 // sqlite: LIMIT -1 means unlimited
	}
	return limit
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
