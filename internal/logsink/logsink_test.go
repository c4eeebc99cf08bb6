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

package logsink

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenPollSeesAppendedLines(t *testing.T) {
	dir := t.TempDir()

	sink, err := Open(dir, "run-1", nil)
	require.NoError(t, err)

	sink.Write("line one")
	sink.Write("line two")

	reader := NewReader(dir, "run-1")
	lines, err := reader.Poll()
	require.NoError(t, err)
	require.Equal(t, []string{"line one", "line two"}, lines)

	// nothing new since last poll
	more, err := reader.Poll()
	require.NoError(t, err)
	require.Empty(t, more)

	sink.Write("line three")
	more, err = reader.Poll()
	require.NoError(t, err)
	require.Equal(t, []string{"line three"}, more)

	require.NoError(t, sink.Close())
}

func TestPollOnMissingFileReturnsNoLines(t *testing.T) {
	reader := NewReader(t.TempDir(), "never-written")
	lines, err := reader.Poll()
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestPathJoinsLogsDirAndRunID(t *testing.T) {
	require.Equal(t, filepath.Join("logs", "abc"), Path("logs", "abc"))
}

func TestMultipleReadersTrackIndependentOffsets(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir, "run-2", nil)
	require.NoError(t, err)
	defer sink.Close()

	sink.Write("a")

	r1 := NewReader(dir, "run-2")
	r2 := NewReader(dir, "run-2")

	l1, err := r1.Poll()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, l1)

	sink.Write("b")

	l2, err := r2.Poll()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, l2)

	l1again, err := r1.Poll()
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, l1again)
}
