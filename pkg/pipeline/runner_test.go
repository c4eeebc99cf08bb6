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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/kani-maki-gang/bld/internal/platform"
)

type fakeBackend struct {
	id        string
	shells    []string
	failOn    string
	exitCode  int
	disposed  bool
	keepAlive bool
	outputs   map[string]string
	copies    []string
}

func (b *fakeBackend) ID() string { return b.id }

func (b *fakeBackend) Shell(ctx context.Context, wd, cmd string, env map[string]string, sink platform.Sink) error {
	b.shells = append(b.shells, cmd)

	if strings.HasPrefix(cmd, "cat ") {
		for k, v := range b.outputs {
			sink.Write(fmt.Sprintf("%s=%s", k, v))
		}
		return nil
	}

	if b.failOn != "" && strings.Contains(cmd, b.failOn) {
		return &platform.ExitError{Code: b.exitCode}
	}

	sink.Write(cmd)
	return nil
}

func (b *fakeBackend) CopyInto(ctx context.Context, from, to string) error {
	b.copies = append(b.copies, "put "+from+" -> "+to)
	return nil
}
func (b *fakeBackend) CopyFrom(ctx context.Context, from, to string) error {
	b.copies = append(b.copies, "get "+from+" -> "+to)
	return nil
}
func (b *fakeBackend) Dispose(ctx context.Context, keepAlive bool) error {
	b.disposed = true
	b.keepAlive = keepAlive
	return nil
}

type fakeBuilder struct{ backend *fakeBackend }

func (f fakeBuilder) Build(ctx context.Context, runsOn string, baseEnv map[string]string) (platform.Backend, error) {
	return f.backend, nil
}

type collectingPlatformSink struct{ lines []string }

func (s *collectingPlatformSink) Write(line string) { s.lines = append(s.lines, line) }

func TestRunnerExecutesStepsInOrderAndFinishes(t *testing.T) {
	doc, err := Parse([]byte(`
name: demo
runs_on: machine
steps:
  - echo one
  - echo two
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	sink := &collectingPlatformSink{}

	r := New(doc, Options{
		RunID:     "run-1",
		Platforms: fakeBuilder{backend: backend},
		Sink:      sink,
	})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.Equal(t, []string{"echo one", "echo two"}, backend.shells)
	assert.True(t, backend.disposed)
}

func TestRunnerFaultsOnStepFailure(t *testing.T) {
	doc, err := Parse([]byte(`
name: demo
runs_on: machine
steps:
  - echo one
  - exit 1
  - echo never
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1", failOn: "exit 1", exitCode: 1}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	state, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.RunFaulted, state)
	assert.Equal(t, []string{"echo one", "exit 1"}, backend.shells)
}

func TestRunnerSkipsStepWhenConditionFalse(t *testing.T) {
	doc, err := Parse([]byte(`
version: v3
name: demo
runs_on: machine
jobs:
  main:
    - run: echo skip-me
      condition: ${{ inputs.skip == "true" }}
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{
		RunID:     "run-1",
		Inputs:    map[string]string{"skip": "false"},
		Platforms: fakeBuilder{backend: backend},
		Sink:      &collectingPlatformSink{},
	})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.Empty(t, backend.shells)
}

func TestRunnerSubstitutesExpressionsInShellCommand(t *testing.T) {
	doc, err := Parse([]byte(`
name: demo
runs_on: machine
steps:
  - echo ${{ inputs.name }}
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{
		RunID:     "run-1",
		Inputs:    map[string]string{"name": "world"},
		Platforms: fakeBuilder{backend: backend},
		Sink:      &collectingPlatformSink{},
	})

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo world"}, backend.shells)
}

func TestRunnerRecordsStepOutputsForLaterExpressions(t *testing.T) {
	doc, err := Parse([]byte(`
version: v3
name: demo
runs_on: machine
jobs:
  main:
    - id: compile
      run: make build
      outputs: true
    - run: echo ${{ steps.compile.outputs.version }}
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1", outputs: map[string]string{"version": "1.2.3"}}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, backend.shells, "echo 1.2.3")
}

func TestRunnerRunsArtifactsAfterMatchingStepAndAtEnd(t *testing.T) {
	doc, err := Parse([]byte(`
version: v3
name: demo
runs_on: machine
artifacts:
  - method: get
    from: build/out
    to: ./out
    after: compile
  - method: put
    from: ./config
    to: /etc/app
jobs:
  main:
    - name: compile
      run: make build
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.Equal(t, []string{"get build/out -> ./out", "put ./config -> /etc/app"}, backend.copies)
}

type fakeArtifactTransfer struct {
	uploads   []string // "from -> to"
	downloads []string
	failUpload, failDownload bool
}

func (f *fakeArtifactTransfer) Upload(ctx context.Context, from, to string) error {
	if f.failUpload {
		return fmt.Errorf("upload failed")
	}
	f.uploads = append(f.uploads, from+" -> "+to)
	return nil
}

func (f *fakeArtifactTransfer) Download(ctx context.Context, from, to string) error {
	if f.failDownload {
		return fmt.Errorf("download failed")
	}
	f.downloads = append(f.downloads, from+" -> "+to)
	return nil
}

func TestRunnerRoutesS3ArtifactsToArtifactTransfer(t *testing.T) {
	doc, err := Parse([]byte(`
version: v3
name: demo
runs_on: machine
artifacts:
  - method: get
    from: s3://bucket/build.tar.gz
    to: ./build.tar.gz
  - method: put
    from: ./report.xml
    to: s3://bucket/report.xml
jobs:
  main:
    - name: noop
      run: "true"
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	transfer := &fakeArtifactTransfer{}
	r := New(doc, Options{
		RunID:     "run-1",
		Platforms: fakeBuilder{backend: backend},
		Sink:      &collectingPlatformSink{},
		Artifacts: transfer,
	})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.Equal(t, []string{"s3://bucket/build.tar.gz -> ./build.tar.gz"}, transfer.downloads)
	assert.Equal(t, []string{"./report.xml -> s3://bucket/report.xml"}, transfer.uploads)
}

func TestRunnerExpandsGlobPutArtifactAcrossMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tar.gz"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.tar.gz"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("c"), 0o644))

	doc, err := Parse([]byte(fmt.Sprintf(`
version: v3
name: demo
runs_on: machine
artifacts:
  - method: put
    from: %s/*.tar.gz
    to: s3://bucket/dist/
jobs:
  main:
    - name: noop
      run: "true"
`, dir)))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	transfer := &fakeArtifactTransfer{}
	r := New(doc, Options{
		RunID:     "run-1",
		Platforms: fakeBuilder{backend: backend},
		Sink:      &collectingPlatformSink{},
		Artifacts: transfer,
	})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.Len(t, transfer.uploads, 2)
	assert.Contains(t, transfer.uploads, filepath.Join(dir, "a.tar.gz")+" -> s3://bucket/dist/")
	assert.Contains(t, transfer.uploads, filepath.Join(dir, "b.tar.gz")+" -> s3://bucket/dist/")
}

func TestRunnerFaultsOnPutGlobWithNoMatches(t *testing.T) {
	dir := t.TempDir()

	doc, err := Parse([]byte(fmt.Sprintf(`
version: v3
name: demo
runs_on: machine
artifacts:
  - method: put
    from: %s/*.tar.gz
    to: s3://bucket/dist/
jobs:
  main:
    - name: noop
      run: "true"
`, dir)))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	transfer := &fakeArtifactTransfer{}
	r := New(doc, Options{
		RunID:     "run-1",
		Platforms: fakeBuilder{backend: backend},
		Sink:      &collectingPlatformSink{},
		Artifacts: transfer,
	})

	_, err = r.Run(context.Background())
	assert.Error(t, err)
}

func TestRunnerFaultsWhenS3ArtifactHasNoTransferConfigured(t *testing.T) {
	doc, err := Parse([]byte(`
version: v3
name: demo
runs_on: machine
artifacts:
  - method: get
    from: s3://bucket/build.tar.gz
    to: ./build.tar.gz
jobs:
  main:
    - name: noop
      run: "true"
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	state, err := r.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, model.RunFaulted, state)
}

func TestRunnerRespectsCancellation(t *testing.T) {
	doc, err := Parse([]byte(`
name: demo
runs_on: machine
steps:
  - echo one
  - echo two
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	state, err := r.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.RunFaulted, state)
	assert.Empty(t, backend.shells)
}

func TestRunnerKeepsPlatformAliveWhenDisposeFalse(t *testing.T) {
	doc, err := Parse([]byte(`
name: demo
runs_on: machine
dispose: false
steps:
  - echo one
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.True(t, backend.disposed)
	assert.True(t, backend.keepAlive)
}

func TestRunnerRunsNestedLocalExternalStep(t *testing.T) {
	child := "name: child\nruns_on: machine\nsteps:\n  - echo child-step\n"
	doc, err := Parse([]byte(`
version: v3
name: parent
runs_on: machine
jobs:
  main:
    - uses: child.yaml
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{
		RunID:     "run-1",
		Platforms: fakeBuilder{backend: backend},
		Source:    memSource{"child.yaml": child},
		Sink:      &collectingPlatformSink{},
	})

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, state)
	assert.Contains(t, backend.shells, "echo child-step")
}

func TestRunnerExternalWithoutServerOrSourceFails(t *testing.T) {
	doc, err := Parse([]byte(`
version: v3
name: parent
runs_on: machine
jobs:
  main:
    - uses: child.yaml
`))
	require.NoError(t, err)

	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}})

	state, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.RunFaulted, state)
}

func TestRunnerRecordsStateViaRecorder(t *testing.T) {
	doc, err := Parse([]byte(`
name: demo
runs_on: machine
steps:
  - echo one
`))
	require.NoError(t, err)

	rec := &recordingRecorder{}
	backend := &fakeBackend{id: "p1"}
	r := New(doc, Options{RunID: "run-1", Platforms: fakeBuilder{backend: backend}, Sink: &collectingPlatformSink{}, Recorder: rec})

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.states, 2)
	assert.Equal(t, model.RunRunning, rec.states[0])
	assert.Equal(t, model.RunFinished, rec.states[1])
}

type recordingRecorder struct{ states []model.RunState }

func (r *recordingRecorder) UpdateRunState(ctx context.Context, runID string, state model.RunState, at time.Time) error {
	r.states = append(r.states, state)
	return nil
}
