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

package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	lines []string
}

func (s *collectingSink) Write(line string) { s.lines = append(s.lines, line) }

func TestMachineShellCapturesOutput(t *testing.T) {
	m, err := NewMachine(t.TempDir(), nil)
	require.NoError(t, err)

	sink := &collectingSink{}
	err = m.Shell(context.Background(), "", "echo hello", nil, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, sink.lines)
}

func TestMachineShellReportsNonZeroExit(t *testing.T) {
	m, err := NewMachine(t.TempDir(), nil)
	require.NoError(t, err)

	err = m.Shell(context.Background(), "", "exit 3", nil, &collectingSink{})
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
}

func TestMachineShellMergesEnv(t *testing.T) {
	m, err := NewMachine(t.TempDir(), map[string]string{"FOO": "base", "SHARED": "base"})
	require.NoError(t, err)

	sink := &collectingSink{}
	err = m.Shell(context.Background(), "", "echo $FOO $SHARED", map[string]string{"SHARED": "override"}, sink)
	require.NoError(t, err)
	require.Len(t, sink.lines, 1)
	assert.Equal(t, "base override", sink.lines[0])
}

func TestMachineDisposeRemovesScratchDir(t *testing.T) {
	root := t.TempDir()
	m, err := NewMachine(root, nil)
	require.NoError(t, err)

	scratch := m.scratch
	_, err = os.Stat(scratch)
	require.NoError(t, err)

	require.NoError(t, m.Dispose(context.Background(), false))
	_, err = os.Stat(scratch)
	assert.True(t, os.IsNotExist(err))
}

func TestMachineDisposeKeepAliveLeavesScratchDir(t *testing.T) {
	root := t.TempDir()
	m, err := NewMachine(root, nil)
	require.NoError(t, err)

	require.NoError(t, m.Dispose(context.Background(), true))
	_, err = os.Stat(m.scratch)
	require.NoError(t, err)
}

func TestMachineCopyIntoAndFrom(t *testing.T) {
	root := t.TempDir()
	m, err := NewMachine(root, nil)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, m.CopyInto(context.Background(), src, "input.txt"))

	dst := filepath.Join(t.TempDir(), "output.txt")
	require.NoError(t, m.CopyFrom(context.Background(), "input.txt", dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
