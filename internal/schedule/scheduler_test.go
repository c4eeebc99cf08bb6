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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipelineStore struct {
	mu      sync.Mutex
	content map[string]string
}

func newFakePipelineStore() *fakePipelineStore {
	return &fakePipelineStore{content: make(map[string]string)}
}

func (s *fakePipelineStore) set(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[name] = content
}

func (s *fakePipelineStore) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.content, name)
}

func (s *fakePipelineStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.content))
	for name := range s.content {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakePipelineStore) Read(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.content[name]
	if !ok {
		return "", fmt.Errorf("no such pipeline: %s", name)
	}
	return content, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	submits  []string
	failNext bool
}

func (f *fakeSubmitter) SubmitRun(_ context.Context, pipelineName, _ string, _, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("submit failed")
	}
	f.submits = append(f.submits, pipelineName)
	return "run-" + pipelineName, nil
}

func (f *fakeSubmitter) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

const cronPipeline = "version: \"v1\"\ncron: \"* * * * *\"\nsteps:\n  - echo hi\n"
const plainPipeline = "version: \"v1\"\nsteps:\n  - echo hi\n"

func TestRefreshRegistersPipelinesWithCronField(t *testing.T) {
	store := newFakePipelineStore()
	store.set("nightly", cronPipeline)
	store.set("adhoc", plainPipeline)

	s := New(store, &fakeSubmitter{})
	require.NoError(t, s.Refresh())

	statuses := s.ListStatus()
	require.Len(t, statuses, 1)
	assert.Equal(t, "nightly", statuses[0].Pipeline)
}

func TestRefreshDropsRemovedPipelines(t *testing.T) {
	store := newFakePipelineStore()
	store.set("nightly", cronPipeline)

	s := New(store, &fakeSubmitter{})
	require.NoError(t, s.Refresh())
	require.Len(t, s.ListStatus(), 1)

	store.remove("nightly")
	require.NoError(t, s.Refresh())
	assert.Empty(t, s.ListStatus())
}

func TestRefreshSkipsInvalidCronExpression(t *testing.T) {
	store := newFakePipelineStore()
	store.set("broken", "version: \"v1\"\ncron: \"not a cron\"\nsteps: []\n")

	s := New(store, &fakeSubmitter{})
	require.NoError(t, s.Refresh())
	assert.Empty(t, s.ListStatus())
}

func TestTickTriggersDueJobsAndAdvancesNextRun(t *testing.T) {
	store := newFakePipelineStore()
	store.set("nightly", cronPipeline)

	submitter := &fakeSubmitter{}
	s := New(store, submitter)
	require.NoError(t, s.Refresh())

	s.mu.Lock()
	j := s.jobs["nightly"]
	past := time.Now().UTC().Add(-time.Hour)
	j.nextRun = past
	s.mu.Unlock()

	s.tick(context.Background(), time.Now().UTC())

	deadline := time.Now().Add(time.Second)
	for submitter.submitCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, submitter.submitCount())

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.True(t, j.nextRun.After(past))
}
