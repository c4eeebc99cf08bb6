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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kani-maki-gang/bld/internal/model"
)

type memRunStore struct {
	mu   sync.Mutex
	runs map[string]*model.PipelineRun
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]*model.PipelineRun)}
}

func (m *memRunStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memRunStore) UpdateRunState(ctx context.Context, runID string, state model.RunState, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return assert.AnError
	}
	run.State = state
	return nil
}

func (m *memRunStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, assert.AnError
	}
	cp := *run
	return &cp, nil
}

func (m *memRunStore) History(ctx context.Context, name string, states []model.RunState, limit int) ([]*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PipelineRun
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRunStore) LastOverall(ctx context.Context) (*model.PipelineRun, error) {
	return nil, nil
}

type memPipelineStore struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemPipelineStore() *memPipelineStore {
	return &memPipelineStore{files: make(map[string]string)}
}

func (m *memPipelineStore) Read(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[name]
	if !ok {
		return "", assert.AnError
	}
	return c, nil
}

func (m *memPipelineStore) Write(name, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
	return nil
}

func (m *memPipelineStore) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return assert.AnError
	}
	delete(m.files, name)
	return nil
}

func (m *memPipelineStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.files {
		names = append(names, n)
	}
	return names, nil
}

func (m *memPipelineStore) Exists(name string) bool {
	_, err := m.Read(name)
	return err == nil
}

func newTestServer() (*Server, *memRunStore, *memPipelineStore) {
	runs := newMemRunStore()
	pipelines := newMemPipelineStore()
	s := New(Options{Runs: runs, Pipelines: pipelines, LogsDir: "/tmp/bld-test-logs"})
	return s, runs, pipelines
}

func TestHandleRunRejectsUnknownPipeline(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"pipeline":"missing"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunCreatesQueuedRun(t *testing.T) {
	s, runs, pipelines := newTestServer()
	pipelines.Write("ci", "jobs:\n  build: {}\n")

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"pipeline":"ci","user":"alice"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, len(runs.runs))
}

func TestHandleStopUnknownRunIsNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/stop", strings.NewReader(`{"run_id":"nope"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePushThenPullRoundTrips(t *testing.T) {
	s, _, _ := newTestServer()

	push := httptest.NewRequest(http.MethodPost, "/push?pipeline=ci", strings.NewReader("jobs:\n  build: {}\n"))
	pushRec := httptest.NewRecorder()
	s.ServeHTTP(pushRec, push)
	require.Equal(t, http.StatusOK, pushRec.Code)

	pull := httptest.NewRequest(http.MethodGet, "/pull?pipeline=ci", nil)
	pullRec := httptest.NewRecorder()
	s.ServeHTTP(pullRec, pull)
	require.Equal(t, http.StatusOK, pullRec.Code)
	assert.Contains(t, pullRec.Body.String(), "build")
}

func TestHandlePushRejectsMalformedPipeline(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/push?pipeline=bad", strings.NewReader("not: [valid"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHandleListReturnsPushedPipelines(t *testing.T) {
	s, _, pipelines := newTestServer()
	pipelines.Write("a", "jobs:\n  x: {}\n")
	pipelines.Write("b", "jobs:\n  y: {}\n")

	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a")
	assert.Contains(t, rec.Body.String(), "b")
}

func TestHandleRemoveDeletesPipeline(t *testing.T) {
	s, _, pipelines := newTestServer()
	pipelines.Write("a", "jobs:\n  x: {}\n")

	req := httptest.NewRequest(http.MethodDelete, "/rm?pipeline=a", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, pipelines.Exists("a"))
}

func TestHandleHAStatusReportsDisconnectedSupervisor(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/ha/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"supervisor_connected":false`)
	assert.Contains(t, rec.Body.String(), `"role":"disabled"`)
}
