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

package runcontext

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	id        string
	disposed  bool
	keepAlive bool
	mu        sync.Mutex
}

func (f *fakePlatform) ID() string { return f.id }

func (f *fakePlatform) Dispose(_ context.Context, keepAlive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = true
	f.keepAlive = keepAlive
	return nil
}

type fakeStopper struct {
	mu      sync.Mutex
	stopped []string
}

func (f *fakeStopper) StopRemoteRun(_ context.Context, server, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, server+"/"+runID)
	return nil
}

func TestCleanupDisposesAllPlatforms(t *testing.T) {
	p1 := &fakePlatform{id: "p1"}
	p2 := &fakePlatform{id: "p2"}

	c := New("run-1", nil, nil, false)
	c.AddPlatform(p1)
	c.AddPlatform(p2)

	c.Cleanup(false)

	assert.True(t, p1.disposed)
	assert.True(t, p2.disposed)
}

func TestRemovePlatformExcludesFromCleanup(t *testing.T) {
	p1 := &fakePlatform{id: "p1"}

	c := New("run-1", nil, nil, false)
	c.AddPlatform(p1)
	c.RemovePlatform("p1")

	c.Cleanup(false)

	assert.False(t, p1.disposed)
}

func TestCleanupStopsRemoteRuns(t *testing.T) {
	stopper := &fakeStopper{}

	c := New("run-1", stopper, nil, false)
	c.AddRemoteRun("server-a", "remote-1")
	c.AddRemoteRun("server-b", "remote-2")

	c.Cleanup(false)

	assert.ElementsMatch(t, []string{"server-a/remote-1", "server-b/remote-2"}, stopper.stopped)
}

func TestCleanupPassesKeepAliveThrough(t *testing.T) {
	p := &fakePlatform{id: "p1"}

	c := New("run-1", nil, nil, true)
	c.AddPlatform(p)
	c.Cleanup(c.DefaultKeepAlive())

	require.True(t, p.disposed)
	assert.True(t, p.keepAlive)
}

func TestConcurrentAddPlatformIsSerialized(t *testing.T) {
	c := New("run-1", nil, nil, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.AddPlatform(&fakePlatform{id: string(rune('a' + i%26))})
		}(i)
	}
	wg.Wait()

	c.Cleanup(false)
}
