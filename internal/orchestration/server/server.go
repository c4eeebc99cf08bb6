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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kani-maki-gang/bld/internal/auth"
	"github.com/kani-maki-gang/bld/internal/blderr"
	"github.com/kani-maki-gang/bld/internal/kv"
	"github.com/kani-maki-gang/bld/internal/logsink"
	"github.com/kani-maki-gang/bld/internal/metrics"
	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/kani-maki-gang/bld/internal/orchestration/proto"
	"github.com/kani-maki-gang/bld/internal/tracing"
	"github.com/kani-maki-gang/bld/pkg/pipeline"
)

// RunStore is the subset of internal/store.Store the server needs.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.PipelineRun) error
	UpdateRunState(ctx context.Context, runID string, state model.RunState, at time.Time) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	History(ctx context.Context, name string, states []model.RunState, limit int) ([]*model.PipelineRun, error)
	LastOverall(ctx context.Context) (*model.PipelineRun, error)
}

// PipelineStore is the subset of internal/fs.ServerStore the server needs.
type PipelineStore interface {
	Read(name string) (string, error)
	Write(name, content string) error
	Remove(name string) error
	List() ([]string, error)
	Exists(name string) bool
}

// Server is bld's HTTP intake, per §4.E/§6.
type Server struct {
	runs      RunStore
	pipelines PipelineStore
	link      *Link
	issuer    *auth.Issuer
	logsDir   string
	kv        kv.Store

	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Options configures a new Server.
type Options struct {
	Runs      RunStore
	Pipelines PipelineStore
	LogsDir   string
	Issuer    *auth.Issuer // nil disables authentication

	// KV backs the /ha/status role report. Nil defaults to an in-process
	// kv.MemoryStore, which always reports RoleDisabled.
	KV kv.Store
}

// New builds a Server and registers its routes.
func New(opts Options) *Server {
	store := opts.KV
	if store == nil {
		store = kv.NewMemoryStore()
	}
	s := &Server{
		runs:      opts.Runs,
		pipelines: opts.Pipelines,
		issuer:    opts.Issuer,
		logsDir:   opts.LogsDir,
		kv:        store,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.link = NewLink(s.onCompleted)
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler. Every request is wrapped with
// correlation ID propagation and a request span, so a request that
// arrives carrying a remote trace context (e.g. a server delegating an
// external step to this one) continues that trace rather than starting
// a disconnected one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tracing.CorrelationMiddleware(tracing.HTTPMiddleware(tracing.TracingMiddleware(s.mux))).ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /control", s.link.ServeHTTP)
	s.mux.Handle("GET /metrics", metrics.Handler())

	authenticated := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(s.issuer, h)
	}

	s.mux.Handle("POST /run", authenticated(s.handleRun))
	s.mux.Handle("POST /stop", authenticated(s.handleStop))
	s.mux.Handle("POST /push", authenticated(s.handlePush))
	s.mux.Handle("GET /pull", authenticated(s.handlePull))
	s.mux.Handle("GET /list", authenticated(s.handleList))
	s.mux.Handle("DELETE /rm", authenticated(s.handleRemove))
	s.mux.Handle("GET /deps", authenticated(s.handleDeps))
	s.mux.Handle("GET /hist", authenticated(s.handleHistory))
	s.mux.Handle("GET /ws-monit/", authenticated(http.HandlerFunc(s.handleMonit)))
	s.mux.Handle("GET /ws-exec/", authenticated(http.HandlerFunc(s.handleExec)))
	s.mux.Handle("GET /ha/status", authenticated(s.handleHAStatus))
}

// onCompleted is invoked by the Link when the supervisor reports a run's
// terminal state, so the server's own PipelineRun row stays in sync even
// when the worker itself failed to write it (e.g. a crash the supervisor
// detected via non-zero exit).
func (s *Server) onCompleted(runID, state string) {
	ctx := context.Background()
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return
	}

	metrics.RunsTotal.WithLabelValues(state).Inc()
	metrics.RunDuration.WithLabelValues(run.Name, state).Observe(time.Since(run.StartDateTime).Seconds())

	if run.State.IsTerminal() {
		return
	}
	_ = s.runs.UpdateRunState(ctx, runID, model.RunState(state), time.Now())
}

type runRequest struct {
	Pipeline    string            `json:"pipeline"`
	User        string            `json:"user,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

type runResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pipeline == "" {
		writeError(w, http.StatusBadRequest, "pipeline is required")
		return
	}

	runID, err := s.SubmitRun(r.Context(), req.Pipeline, req.User, req.Variables, req.Environment)
	if err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, runResponse{RunID: runID})
}

// SubmitRun persists a new queued PipelineRun and enqueues it on the
// supervisor's control channel. It is the single entrypoint both the
// `POST /run` handler and the cron scheduler submit runs through, so a
// scheduled trigger is indistinguishable from an interactive one once it
// reaches the orchestration plane.
func (s *Server) SubmitRun(ctx context.Context, pipelineName, user string, variables, environment map[string]string) (string, error) {
	if !s.pipelines.Exists(pipelineName) {
		return "", blderr.New(blderr.PipelineNotFound, "server.SubmitRun", fmt.Errorf("pipeline %q not found", pipelineName))
	}

	runID := uuid.NewString()
	run := &model.PipelineRun{
		ID:            runID,
		Name:          pipelineName,
		State:         model.RunInitial,
		User:          user,
		StartDateTime: time.Now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", blderr.New(blderr.Internal, "server.SubmitRun", err)
	}

	s.link.Send(proto.NewEnqueue(runID, pipelineName, variables, environment))
	_ = s.runs.UpdateRunState(ctx, runID, model.RunQueued, time.Now())

	return runID, nil
}

type stopRequest struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RunID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	if _, err := s.runs.GetRun(r.Context(), req.RunID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	s.link.Send(proto.NewStop(req.RunID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("pipeline")
	if name == "" {
		writeError(w, http.StatusBadRequest, "pipeline query parameter is required")
		return
	}
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if _, err := pipeline.Parse(body); err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}
	if err := s.pipelines.Write(name, string(body)); err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("pipeline")
	content, err := s.pipelines.Read(name)
	if err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Write([]byte(content))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.pipelines.List()
	if err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"pipelines": names})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("pipeline")
	if err := s.pipelines.Remove(name); err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("pipeline")
	source := storeSource{s.pipelines}
	deps, err := pipeline.Dependencies(source, name)
	if err != nil {
		writeError(w, blderr.HTTPStatus(err), err.Error())
		return
	}
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dependencies": names})
}

// storeSource adapts PipelineStore to pipeline.Source.
type storeSource struct{ store PipelineStore }

func (s storeSource) Read(name string) (string, error) { return s.store.Read(name) }

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("pipeline")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	var states []model.RunState
	for _, v := range r.URL.Query()["state"] {
		states = append(states, model.RunState(v))
	}

	runs, err := s.runs.History(r.Context(), name, states, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHAStatus(w http.ResponseWriter, r *http.Request) {
	status := s.kv.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"supervisor_connected": s.link.Connected(),
		"role":                 status.Role,
		"members":              status.Members,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

