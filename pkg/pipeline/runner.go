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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kani-maki-gang/bld/internal/blderr"
	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/kani-maki-gang/bld/internal/platform"
	"github.com/kani-maki-gang/bld/internal/runcontext"
	"github.com/kani-maki-gang/bld/internal/tracing"
	"github.com/kani-maki-gang/bld/pkg/pipeline/expr"
	"go.opentelemetry.io/otel/trace"
)

// outputsFile is the scratch-file convention a structured step with
// `outputs: true` writes key=value lines to; the Runner reads it back
// after the step's shell exits zero and records the values under the
// step's id.
const outputsFile = ".bld-outputs"

// PlatformBuilder constructs the Platform variant a pipeline's `runs_on`
// names. Concrete construction (docker client, ssh dial params, libvirt
// URIs) lives with the caller so the Runner stays free of transport
// wiring concerns.
type PlatformBuilder interface {
	Build(ctx context.Context, runsOn string, baseEnv map[string]string) (platform.Backend, error)
}

// RemoteRunner delegates an external step with a `server` set to another
// bld server, per §4.D External step semantics.
type RemoteRunner interface {
	StartRemote(ctx context.Context, server, pipeline string, with, env map[string]string) (runID string, err error)
	WaitRemote(ctx context.Context, server, runID string, sink platform.Sink) (model.RunState, error)
}

// Recorder persists PipelineRun state transitions. A nil Recorder makes
// the Runner purely in-memory, which nested local runners use so only
// the top-level run is ever written to the store.
type Recorder interface {
	UpdateRunState(ctx context.Context, runID string, state model.RunState, at time.Time) error
}

// Options configures one Runner invocation.
type Options struct {
	RunID       string
	Pipeline    string // the pipeline's name, for nested-dependency resolution and logging
	RootDir     string
	ProjectDir  string
	Inputs      map[string]string // `with` bindings from the caller (CLI -v or an external step)
	Environment map[string]string // run-level environment overrides

	Platforms PlatformBuilder
	Remote    RemoteRunner // nil if no remote delegation is possible
	Source    Source       // resolves external.uses that have no server, for nested runners
	Recorder  Recorder     // nil for nested runners; the top-level worker supplies one

	Sink    platform.Sink
	Logger  *slog.Logger
	Stopper runcontext.RemoteStopper

	// Tracer, if set, roots a span for this run and one for each step.
	// Nested local runners reuse the caller's context, so a nested
	// run's span parents under the step span that started it.
	Tracer trace.Tracer

	// Artifacts handles artifact from/to paths that name a remote URI
	// (s3://...) instead of a platform-local path. Nil disables remote
	// artifact transfer; artifacts addressed purely by platform paths
	// never consult it.
	Artifacts ArtifactTransfer
}

// ArtifactTransfer moves a single artifact across the boundary between
// the local filesystem and a remote object store named by a
// scheme-qualified URI. internal/artifact.S3 satisfies this for s3://.
type ArtifactTransfer interface {
	Upload(ctx context.Context, localPath, remoteURI string) error
	Download(ctx context.Context, remoteURI, localPath string) error
}

// Runner drives one parsed pipeline Document to completion against a
// Platform, per the §4.D lifecycle. Steps 1 (Parse) and 2 (Validate)
// happen before a Runner is constructed; step 3 (resolve dependencies)
// is the caller's job, since it needs a Source only the caller has; New
// performs step 4, Run performs steps 5-8.
type Runner struct {
	doc  *Document
	opts Options

	evaluator *expr.Evaluator
	exprCtx   *expr.Context

	runCtx  *runcontext.Context
	backend platform.Backend
}

// New binds the read-side expression context (§4.D step 4) for doc and
// returns a Runner ready to Run.
func New(doc *Document, opts Options) *Runner {
	startTime := time.Now().UTC().Format(time.RFC3339)
	return &Runner{
		doc:       doc,
		opts:      opts,
		evaluator: expr.New(),
		exprCtx: expr.NewContext(opts.RootDir, opts.ProjectDir, opts.RunID, startTime,
			opts.Inputs, opts.Environment),
	}
}

// Run executes §4.D steps 5-8: spawn the platform, execute every job's
// steps in order, run artifacts, and tear down. The returned state is
// always terminal (RunFinished or RunFaulted); Run itself never returns
// a transport/setup error without also reporting a terminal state, so
// callers can always persist a result.
func (r *Runner) Run(ctx context.Context) (model.RunState, error) {
	const op = "pipeline.Runner.Run"

	var runSpan *tracing.PipelineSpan
	if r.opts.Tracer != nil {
		ctx, runSpan = tracing.StartRun(ctx, r.opts.Tracer, r.opts.RunID, r.opts.Pipeline)
		defer runSpan.End()
	}

	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.UpdateRunState(ctx, r.opts.RunID, model.RunRunning, time.Now().UTC()); err != nil && r.opts.Logger != nil {
			r.opts.Logger.Warn("record run start failed", "run_id", r.opts.RunID, "error", err)
		}
	}

	backend, err := r.opts.Platforms.Build(ctx, r.doc.RunsOn, r.doc.Environment)
	if err != nil {
		return r.finish(ctx, model.RunFaulted, blderr.New(blderr.PlatformFailure, op, err))
	}
	r.backend = backend

	r.runCtx = runcontext.New(r.opts.RunID, r.opts.Stopper, r.opts.Logger, !r.doc.Dispose)
	r.runCtx.AddPlatform(backend)

	var runErr error
runJobs:
	for _, job := range r.doc.JobOrder {
		for _, step := range r.doc.Jobs[job] {
			if ctx.Err() != nil {
				runErr = blderr.New(blderr.Cancelled, op, ctx.Err())
				break runJobs
			}

			if err := r.runStep(ctx, job, step); err != nil {
				runErr = err
				break runJobs
			}
		}
	}

	if artErr := r.runArtifacts(ctx, "", runErr == nil); artErr != nil && runErr == nil {
		runErr = artErr
	}

	state := model.RunFinished
	if runErr != nil {
		state = model.RunFaulted
		runSpan.RecordError(runErr)
	} else {
		runSpan.SetOK()
	}
	return r.finish(ctx, state, runErr)
}

func (r *Runner) finish(ctx context.Context, state model.RunState, runErr error) (model.RunState, error) {
	keepAlive := !r.doc.Dispose && state == model.RunFinished
	if r.runCtx != nil {
		r.runCtx.Cleanup(keepAlive)
	}

	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.UpdateRunState(ctx, r.opts.RunID, state, time.Now().UTC()); err != nil && r.opts.Logger != nil {
			r.opts.Logger.Warn("record run finish failed", "run_id", r.opts.RunID, "error", err)
		}
	}

	return state, runErr
}

func (r *Runner) runStep(ctx context.Context, job string, step Step) (stepErr error) {
	const op = "pipeline.Runner.runStep"

	if r.opts.Tracer != nil {
		var stepSpan *tracing.PipelineSpan
		ctx, stepSpan = tracing.StartStep(ctx, r.opts.Tracer, job, stepSpanLabel(step))
		defer func() {
			if stepErr != nil {
				stepSpan.RecordError(stepErr)
			} else {
				stepSpan.SetOK()
			}
			stepSpan.End()
		}()
	}

	switch step.Kind {
	case StepShell:
		return r.runShell(ctx, job, "", r.doc.Variables, step.Shell)

	case StepComplex:
		c := step.Complex
		cond := strings.TrimSpace(c.Condition)
		if strings.HasPrefix(cond, "${{") && strings.HasSuffix(cond, "}}") {
			cond = strings.TrimSpace(cond[3 : len(cond)-2])
		}
		ok, err := r.evaluator.EvalBool(cond, r.exprCtx, job)
		if err != nil {
			return blderr.New(blderr.Expression, op, err)
		}
		if !ok {
			r.log("skip: step %s (condition false)", stepLabel(c))
			return nil
		}

		if err := r.runShell(ctx, job, c.WorkingDir, r.doc.Variables, c.Run); err != nil {
			return err
		}

		if c.Outputs && c.ID != "" {
			outputs, err := r.readStepOutputs(ctx, c.WorkingDir)
			if err != nil {
				r.log("warn: step %s outputs not read: %v", stepLabel(c), err)
			} else {
				r.exprCtx.RecordOutputs(job, c.ID, outputs)
			}
		}

		if c.Name != "" {
			return r.runArtifacts(ctx, c.Name, true)
		}
		return nil

	case StepExternal:
		return r.runExternal(ctx, job, step.External)
	}

	return nil
}

// stepSpanLabel names a step's span from whatever identifies it best:
// a structured step's name or id, an external step's uses target, or
// a generic fallback for a bare shell line.
func stepSpanLabel(step Step) string {
	switch step.Kind {
	case StepComplex:
		return stepLabel(step.Complex)
	case StepExternal:
		return step.External.Uses
	default:
		return "(shell)"
	}
}

func stepLabel(c *ShellCommand) string {
	if c.Name != "" {
		return c.Name
	}
	if c.ID != "" {
		return c.ID
	}
	return "(unnamed)"
}

func (r *Runner) runShell(ctx context.Context, job, wd string, variables map[string]string, raw string) error {
	const op = "pipeline.Runner.runShell"

	resolved, err := expr.Substitute(raw, r.evaluator, r.exprCtx, job)
	if err != nil {
		return err
	}

	env := platform.MergeEnv(r.doc.Environment, r.opts.Environment)
	if err := r.backend.Shell(ctx, wd, resolved, env, r.opts.Sink); err != nil {
		code := platform.ExitCode(err)
		if code >= 0 {
			return blderr.New(blderr.StepFailure, op, fmt.Errorf("command exited %d: %s", code, resolved))
		}
		return blderr.New(blderr.PlatformFailure, op, err)
	}
	return nil
}

// readStepOutputs reads the outputs-convention file back from the
// platform via a throwaway shell invocation and parses its key=value
// lines.
func (r *Runner) readStepOutputs(ctx context.Context, wd string) (map[string]string, error) {
	collector := &lineCollector{}
	cmd := fmt.Sprintf("cat %s 2>/dev/null || true", outputsFile)
	if err := r.backend.Shell(ctx, wd, cmd, nil, collector); err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(collector.lines))
	for _, line := range collector.lines {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		outputs[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return outputs, nil
}

type lineCollector struct{ lines []string }

func (c *lineCollector) Write(line string) { c.lines = append(c.lines, line) }

func (r *Runner) runArtifacts(ctx context.Context, afterStep string, stepSucceeded bool) error {
	const op = "pipeline.Runner.runArtifacts"

	if !stepSucceeded {
		return nil
	}

	for _, a := range r.doc.Artifacts {
		if a.After != afterStep {
			continue
		}

		var err error
		switch {
		case a.Method == "get" && strings.HasPrefix(a.From, "s3://"):
			err = r.copyFromS3(ctx, a.From, a.To)
		case a.Method == "put" && strings.HasPrefix(a.To, "s3://"):
			err = r.putArtifactGlob(a.From, func(from string) error { return r.copyToS3(ctx, from, a.To) })
		case a.Method == "get":
			err = r.backend.CopyFrom(ctx, a.From, a.To)
		case a.Method == "put":
			err = r.putArtifactGlob(a.From, func(from string) error { return r.backend.CopyInto(ctx, from, a.To) })
		default:
			err = fmt.Errorf("unknown artifact method %q", a.Method)
		}

		if err != nil {
			if a.IgnoreErrors {
				r.log("warn: artifact %s -> %s failed (ignored): %v", a.From, a.To, err)
				continue
			}
			return blderr.New(blderr.PlatformFailure, op, err)
		}
	}

	return nil
}

// putArtifactGlob resolves a put artifact's from pattern against the
// local filesystem and calls upload once per match. A pattern with no
// doublestar metacharacters is uploaded as a single literal path,
// matched or not: a missing literal path surfaces as the backend's own
// not-found error rather than a silent no-op.
func (r *Runner) putArtifactGlob(from string, upload func(string) error) error {
	if !doublestar.ContainsMagic(from) {
		return upload(from)
	}

	matches, err := doublestar.FilepathGlob(from)
	if err != nil {
		return fmt.Errorf("artifact glob %q: %w", from, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("artifact glob %q matched no files", from)
	}

	for _, m := range matches {
		if err := upload(m); err != nil {
			return err
		}
	}
	return nil
}

// copyFromS3 downloads the object at the s3:// URI from directly to the
// local path to, bypassing the platform backend entirely.
func (r *Runner) copyFromS3(ctx context.Context, from, to string) error {
	if r.opts.Artifacts == nil {
		return fmt.Errorf("artifact %s uses s3:// but no S3 transfer is configured", from)
	}
	return r.opts.Artifacts.Download(ctx, from, to)
}

// copyToS3 uploads the local path from to the s3:// URI to, bypassing the
// platform backend entirely.
func (r *Runner) copyToS3(ctx context.Context, from, to string) error {
	if r.opts.Artifacts == nil {
		return fmt.Errorf("artifact %s uses s3:// but no S3 transfer is configured", to)
	}
	return r.opts.Artifacts.Upload(ctx, from, to)
}

func (r *Runner) runExternal(ctx context.Context, job string, ext *External) error {
	const op = "pipeline.Runner.runExternal"

	with := platform.MergeEnv(ext.With, nil)
	env := platform.MergeEnv(ext.Env, nil)

	if ext.Server != "" {
		if r.opts.Remote == nil {
			return blderr.New(blderr.Config, op, fmt.Errorf("external step uses server %q but no remote runner is configured", ext.Server))
		}

		remoteID, err := r.opts.Remote.StartRemote(ctx, ext.Server, ext.Uses, with, env)
		if err != nil {
			return blderr.New(blderr.Network, op, err)
		}
		r.runCtx.AddRemoteRun(ext.Server, remoteID)

		state, err := r.opts.Remote.WaitRemote(ctx, ext.Server, remoteID, r.opts.Sink)
		r.runCtx.RemoveRemoteRun(remoteID)
		if err != nil {
			return blderr.New(blderr.Network, op, err)
		}
		if state != model.RunFinished {
			return blderr.New(blderr.StepFailure, op, fmt.Errorf("remote run %s on %s did not finish", remoteID, ext.Server))
		}
		return nil
	}

	if r.opts.Source == nil {
		return blderr.New(blderr.Config, op, fmt.Errorf("external step uses %q locally but no pipeline source is configured", ext.Uses))
	}

	raw, err := r.opts.Source.Read(ext.Uses)
	if err != nil {
		return blderr.New(blderr.PipelineNotFound, op, err)
	}

	childDoc, err := Parse([]byte(raw))
	if err != nil {
		return err
	}

	if err := Validate(childDoc, sourceAsFS{r.opts.Source}, nil); err != nil {
		return err
	}

	child := New(childDoc, Options{
		RunID:       r.opts.RunID + "/" + ext.Uses,
		Pipeline:    ext.Uses,
		RootDir:     r.opts.RootDir,
		ProjectDir:  r.opts.ProjectDir,
		Inputs:      with,
		Environment: env,
		Platforms:   r.opts.Platforms,
		Remote:      r.opts.Remote,
		Source:      r.opts.Source,
		Sink:        r.opts.Sink,
		Logger:      r.opts.Logger,
		Stopper:     r.opts.Stopper,
		Tracer:      r.opts.Tracer,
		Artifacts:   r.opts.Artifacts,
	})

	state, err := child.Run(ctx)
	if err != nil {
		return blderr.New(blderr.StepFailure, op, fmt.Errorf("nested pipeline %q: %w", ext.Uses, err))
	}
	if state != model.RunFinished {
		return blderr.New(blderr.StepFailure, op, fmt.Errorf("nested pipeline %q did not finish", ext.Uses))
	}

	return nil
}

// sourceAsFS adapts a Source to the FileSystem interface Validate needs,
// so a nested external's own external.uses can be checked too.
type sourceAsFS struct{ src Source }

func (f sourceAsFS) Exists(path string) bool {
	_, err := f.src.Read(path)
	return err == nil
}

func (r *Runner) log(format string, args ...any) {
	if r.opts.Sink != nil {
		r.opts.Sink.Write(fmt.Sprintf(format, args...))
	}
}
