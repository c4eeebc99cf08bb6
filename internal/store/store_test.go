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

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bld.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &model.PipelineRun{
		ID:            "run-1",
		Name:          "ci",
		State:         model.RunInitial,
		User:          "alice",
		StartDateTime: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, model.RunInitial, got.State)
	require.Nil(t, got.EndDateTime)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
}

func TestUpdateRunStateTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &model.PipelineRun{ID: "run-2", Name: "ci", State: model.RunInitial, User: "bob", StartDateTime: time.Now().UTC()}
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.UpdateRunState(ctx, "run-2", model.RunFinished, time.Now().UTC()))

	got, err := s.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, model.RunFinished, got.State)
	require.NotNil(t, got.EndDateTime)
}

func TestHistoryFiltersByNameAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	runs := []*model.PipelineRun{
		{ID: "a", Name: "ci", State: model.RunFinished, User: "alice", StartDateTime: base},
		{ID: "b", Name: "ci", State: model.RunFaulted, User: "alice", StartDateTime: base.Add(time.Second)},
		{ID: "c", Name: "deploy", State: model.RunFinished, User: "alice", StartDateTime: base.Add(2 * time.Second)},
	}
	for _, r := range runs {
		require.NoError(t, s.CreateRun(ctx, r))
	}

	got, err := s.History(ctx, "ci", []model.RunState{model.RunFinished}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
}

func TestContainerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &model.PipelineRun{ID: "run-3", Name: "ci", State: model.RunRunning, User: "alice", StartDateTime: time.Now().UTC()}
	require.NoError(t, s.CreateRun(ctx, run))

	c := &model.PipelineRunContainer{ID: "c-1", RunID: "run-3", ContainerID: "docker-abc", State: model.ContainerActive}
	require.NoError(t, s.CreateContainer(ctx, c))

	require.NoError(t, s.UpdateContainerState(ctx, "c-1", model.ContainerRemoved))

	got, err := s.ContainersForRun(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.ContainerRemoved, got[0].State)
}
