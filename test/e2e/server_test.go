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

// Package e2e drives a live bld server through internal/client, the same
// path the CLI uses, instead of calling orchestration/server handlers
// directly.
package e2e

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kani-maki-gang/bld/internal/client"
	"github.com/kani-maki-gang/bld/internal/fs"
	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/kani-maki-gang/bld/internal/orchestration/server"
	"github.com/kani-maki-gang/bld/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *client.Client) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "bld.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pipelines, err := fs.NewServerStore(filepath.Join(t.TempDir(), "pipelines"))
	require.NoError(t, err)

	srv := server.New(server.Options{
		Runs:      st,
		Pipelines: pipelines,
		LogsDir:   t.TempDir(),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := client.New(ts.URL)
	require.NoError(t, err)

	return ts, c
}

// TestPushPullListRoundTrip exercises a pipeline document's full transfer
// lifecycle through the client/server REST surface.
func TestPushPullListRoundTrip(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	body := []byte("jobs:\n  build:\n    steps:\n      - run: echo hi\n")
	require.NoError(t, c.Push(ctx, "ci", body))

	pulled, err := c.Pull(ctx, "ci")
	require.NoError(t, err)
	assert.Contains(t, string(pulled), "build")

	names, err := c.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "ci")

	require.NoError(t, c.Remove(ctx, "ci"))
	names, err = c.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "ci")
}

// TestRunUnknownPipelineFails checks the server rejects a run submitted
// against a pipeline name that was never pushed.
func TestRunUnknownPipelineFails(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	_, err := c.Run(ctx, client.RunRequest{Pipeline: "missing"})
	assert.Error(t, err)
}

// TestRunThenHistoryReportsQueuedRun submits a run for a pushed pipeline
// and confirms it surfaces in history before any worker picks it up.
func TestRunThenHistoryReportsQueuedRun(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.Push(ctx, "ci", []byte("jobs:\n  build: {}\n")))

	runID, err := c.Run(ctx, client.RunRequest{Pipeline: "ci", User: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	runs, err := c.History(ctx, client.HistoryFilter{Pipeline: "ci", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, model.RunQueued, runs[0].State)
}

// TestStopUnknownRunIsNotFound checks stop fails cleanly for a run ID
// the server has never seen.
func TestStopUnknownRunIsNotFound(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	err := c.Stop(ctx, "does-not-exist")
	assert.Error(t, err)
}

// TestHAStatusReportsDisabledRoleWithNoSupervisor confirms a freshly
// started server with no supervisor connection reports an unreplicated,
// disconnected status, matching a single-node deployment.
func TestHAStatusReportsDisabledRoleWithNoSupervisor(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	connected, err := c.HAStatus(ctx)
	require.NoError(t, err)
	assert.False(t, connected)
}
