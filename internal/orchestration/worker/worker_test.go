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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kani-maki-gang/bld/internal/config"
	"github.com/kani-maki-gang/bld/internal/fs"
	"github.com/kani-maki-gang/bld/internal/model"
	"github.com/kani-maki-gang/bld/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Local.Server.LogsDir = filepath.Join(dir, "logs")
	cfg.Local.Server.DBPath = filepath.Join(dir, "db", "bld.db")
	cfg.Local.Server.PipelinesDir = filepath.Join(dir, "server_pipelines")
	return cfg
}

func TestRunReturnsFailureAndMarksFaultedWhenPipelineMissing(t *testing.T) {
	cfg := testConfig(t)

	st, err := store.Open(cfg.Local.Server.DBPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.CreateRun(context.Background(), &model.PipelineRun{
		ID: "r1", Name: "does-not-exist", State: model.RunQueued, StartDateTime: time.Now(),
	}))

	code := Run(context.Background(), cfg, Params{RunID: "r1", Pipeline: "does-not-exist"})
	assert.Equal(t, 1, code)

	run, err := st.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RunFaulted, run.State)
}

func TestRunReturnsFailureOnMalformedPipeline(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, writePipeline(t, cfg, "broken", "not: [valid"))

	code := Run(context.Background(), cfg, Params{RunID: "r2", Pipeline: "broken"})
	assert.Equal(t, 1, code)
}

func writePipeline(t *testing.T, cfg *config.Config, name, content string) error {
	t.Helper()
	src, err := fs.NewServerStore(cfg.Local.Server.PipelinesDir)
	if err != nil {
		return err
	}
	return src.Write(name, content)
}
