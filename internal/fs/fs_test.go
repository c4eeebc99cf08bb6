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

package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStoreWriteReadRoundTrips(t *testing.T) {
	store, err := NewServerStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("hello", "jobs:\n  build: {}\n"))

	got, err := store.Read("hello")
	require.NoError(t, err)
	assert.Equal(t, "jobs:\n  build: {}\n", got)
	assert.True(t, store.Exists("hello"))
}

func TestServerStoreReadMissingIsNotFound(t *testing.T) {
	store, err := NewServerStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("nope")
	require.Error(t, err)
	assert.False(t, store.Exists("nope"))
}

func TestServerStoreRejectsPathEscape(t *testing.T) {
	store, err := NewServerStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("../../etc/passwd")
	require.Error(t, err)
}

func TestServerStoreListReturnsPushedNames(t *testing.T) {
	store, err := NewServerStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("a", "x"))
	require.NoError(t, store.Write("b", "y"))

	names, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestServerStoreRemoveDeletesPipeline(t *testing.T) {
	store, err := NewServerStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("a", "x"))
	require.NoError(t, store.Remove("a"))
	assert.False(t, store.Exists("a"))

	err = store.Remove("a")
	require.Error(t, err)
}

func TestLocalSourceReadsWithinRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ci.yaml"), []byte("v: 1\n"), 0o644))

	src := NewLocalSource(dir)
	got, err := src.Read("ci.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v: 1\n", got)
	assert.True(t, src.Exists("ci.yaml"))
}

func TestLocalSourceRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	src := NewLocalSource(dir)

	_, err := src.Read("../outside.yaml")
	require.Error(t, err)
}

func TestWatcherPublishesEditOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ci.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v: 1\n"), 0o644))

	w, err := NewWatcher(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("v: 2\n"), 0o644))

	select {
	case edit := <-w.Events():
		assert.Equal(t, "ci", edit.Pipeline)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
}
