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

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kani-maki-gang/bld/internal/artifact"
	"github.com/kani-maki-gang/bld/internal/config"
	"github.com/kani-maki-gang/bld/internal/fs"
	"github.com/kani-maki-gang/bld/internal/logsink"
	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/kani-maki-gang/bld/internal/store"
	"github.com/kani-maki-gang/bld/internal/tracing"
	"github.com/kani-maki-gang/bld/pkg/pipeline"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Params are the `worker --run-id ... --pipeline ...` subcommand's
// parsed flags.
type Params struct {
	RunID       string
	Pipeline    string
	Variables   map[string]string
	Environment map[string]string
}

// Run executes one pipeline run to completion: open the log, load the
// pipeline source, build and drive a Runner, persist terminal state, and
// return a process exit code (0 success, non-zero failure) per §4.E.
// The worker opens no inbound sockets — it is a pure executor.
func Run(parentCtx context.Context, cfg *config.Config, params Params) int {
	logger := slog.Default().With(slog.String("component", "worker"), slog.String("run_id", params.RunID))

	sink, err := logsink.Open(cfg.Local.Server.LogsDir, params.RunID, logger)
	if err != nil {
		logger.Error("failed to open log sink", "error", err)
		return 1
	}
	defer sink.Close()

	st, err := store.Open(cfg.Local.Server.DBPath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer st.Close()

	source, err := fs.NewServerStore(cfg.Local.Server.PipelinesDir)
	if err != nil {
		logger.Error("failed to open pipeline store", "error", err)
		return 1
	}

	raw, err := source.Read(params.Pipeline)
	if err != nil {
		logger.Error("failed to load pipeline", "error", err)
		sink.Error(fmt.Sprintf("failed to load pipeline %q: %v", params.Pipeline, err))
		_ = st.UpdateRunState(parentCtx, params.RunID, model.RunFaulted, time.Now())
		return 1
	}

	doc, err := pipeline.Parse([]byte(raw))
	if err != nil {
		logger.Error("failed to parse pipeline", "error", err)
		sink.Error(fmt.Sprintf("failed to parse pipeline %q: %v", params.Pipeline, err))
		_ = st.UpdateRunState(parentCtx, params.RunID, model.RunFaulted, time.Now())
		return 1
	}

	if err := pipeline.Validate(doc, source, nil); err != nil {
		logger.Error("pipeline failed validation", "error", err)
		sink.Error(fmt.Sprintf("pipeline %q failed validation: %v", params.Pipeline, err))
		_ = st.UpdateRunState(parentCtx, params.RunID, model.RunFaulted, time.Now())
		return 1
	}

	ctx, cancel := signalCancel(parentCtx)
	defer cancel()

	tracingCfg := tracing.FromConfigSource("bld-worker", tracing.ConfigSource{
		Enabled:    cfg.Local.Tracing.Enabled,
		Exporter:   cfg.Local.Tracing.Exporter,
		Endpoint:   cfg.Local.Tracing.Endpoint,
		SampleRate: cfg.Local.Tracing.SampleRate,
	})
	provider, err := tracing.NewProvider(parentCtx, tracingCfg)
	if err != nil {
		logger.Warn("tracing provider unavailable, running untraced", "error", err)
	}
	var tracer oteltrace.Tracer
	if provider != nil {
		tracer = provider.Tracer("github.com/kani-maki-gang/bld/pkg/pipeline")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
	}

	scratchRoot := filepath.Join(filepath.Dir(cfg.Local.Server.LogsDir), "scratch")
	builder := &PlatformBuilder{Config: cfg, ScratchRoot: scratchRoot}

	var transfer pipeline.ArtifactTransfer
	if usesS3(doc) {
		s3, err := artifact.NewS3(parentCtx, cfg.Local.Artifacts.S3Region)
		if err != nil {
			logger.Warn("s3 artifact transfer unavailable", "error", err)
		} else {
			transfer = s3
		}
	}

	runner := pipeline.New(doc, pipeline.Options{
		RunID:       params.RunID,
		Pipeline:    params.Pipeline,
		RootDir:     cfg.Local.Server.PipelinesDir,
		ProjectDir:  cfg.Local.Server.PipelinesDir,
		Inputs:      params.Variables,
		Environment: params.Environment,
		Platforms:   builder,
		Source:      source,
		Recorder:    st,
		Sink:        sink,
		Logger:      logger,
		Tracer:      tracer,
		Artifacts:   transfer,
	})

	state, runErr := runner.Run(ctx)
	if runErr != nil {
		logger.Error("run finished with error", "error", runErr, "state", state)
	}

	if state == model.RunFinished {
		return 0
	}
	return 1
}

// usesS3 reports whether any artifact in doc names an s3:// URI, so the
// worker only pays for an AWS config load when a run actually needs it.
func usesS3(doc *pipeline.Document) bool {
	for _, a := range doc.Artifacts {
		if strings.HasPrefix(a.From, "s3://") || strings.HasPrefix(a.To, "s3://") {
			return true
		}
	}
	return false
}

// signalCancel wraps parent with a context that is cancelled on SIGTERM,
// so the Runner's cooperative cancellation check sees the stop signal
// the supervisor sends on `bld stop`.
func signalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
