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

package supervisor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	mu       sync.Mutex
	started  bool
	exited   bool
	err      error
	signals  []Signal
	startErr error
}

func (p *fakeProcess) Start() error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	return nil
}

func (p *fakeProcess) Signal(sig Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *fakeProcess) Wait() error { return p.err }

func (p *fakeProcess) Poll() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.err
}

func (p *fakeProcess) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.err = err
}

type fakeSpawner struct {
	mu        sync.Mutex
	processes map[string]*fakeProcess
	spawnErr  error
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{processes: make(map[string]*fakeProcess)}
}

func (s *fakeSpawner) Spawn(w *Worker) (Process, error) {
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakeProcess{}
	s.processes[w.RunID] = p
	return p, nil
}

func (s *fakeSpawner) process(runID string) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[runID]
}

type fakeNotifier struct {
	mu      sync.Mutex
	exited  map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{exited: make(map[string]error)}
}

func (n *fakeNotifier) WorkerExited(runID string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exited[runID] = err
}

func (n *fakeNotifier) saw(runID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.exited[runID]
	return ok
}

func TestQueueSpawnsImmediatelyUnderCapacity(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(2, spawner, nil)

	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))
	assert.Equal(t, 1, q.ActiveCount())
	assert.Equal(t, 0, q.BacklogCount())
	assert.True(t, spawner.process("r1").started)
}

func TestQueueParksInBacklogAtCapacity(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(1, spawner, nil)

	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))
	require.NoError(t, q.Enqueue("r2", "ci", nil, nil))

	assert.Equal(t, 1, q.ActiveCount())
	assert.Equal(t, 1, q.BacklogCount())
	assert.Nil(t, spawner.process("r2"))
}

func TestQueueRefreshReapsAndPromotesBacklog(t *testing.T) {
	spawner := newFakeSpawner()
	notifier := newFakeNotifier()
	q := NewQueue(1, spawner, notifier)

	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))
	require.NoError(t, q.Enqueue("r2", "ci", nil, nil))
	assert.Equal(t, 1, q.BacklogCount())

	spawner.process("r1").finish(nil)
	q.Refresh()

	assert.Equal(t, 1, q.ActiveCount())
	assert.Equal(t, 0, q.BacklogCount())
	assert.True(t, notifier.saw("r1"))
	assert.True(t, spawner.process("r2").started)
}

func TestQueueStopDropsBacklogEntry(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(1, spawner, nil)

	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))
	require.NoError(t, q.Enqueue("r2", "ci", nil, nil))

	found := q.Stop("r2")
	assert.True(t, found)
	assert.Equal(t, 0, q.BacklogCount())
}

func TestQueueStopSignalsActiveWorker(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(1, spawner, nil)
	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))

	found := q.Stop("r1")
	assert.True(t, found)
	assert.Equal(t, []Signal{SignalTerm}, spawner.process("r1").signals)
}

func TestQueueStopReportsNotFound(t *testing.T) {
	q := NewQueue(1, newFakeSpawner(), nil)
	assert.False(t, q.Stop("missing"))
}

func TestQueueNeverExceedsCapacity(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(2, spawner, nil)

	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		require.NoError(t, q.Enqueue(id, "ci", nil, nil))
	}

	assert.LessOrEqual(t, q.ActiveCount(), 2)
	assert.Equal(t, 2, q.BacklogCount())
}

func TestQueueRefreshPublishesCompletionEvents(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(1, spawner, nil)
	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))

	spawner.process("r1").finish(nil)
	q.Refresh()

	select {
	case ev := <-q.Completions():
		assert.Equal(t, "r1", ev.RunID)
		assert.Equal(t, "finished", ev.State)
	default:
		t.Fatal("expected a completion event")
	}
}

func TestQueueRefreshReportsFaultedOnNonZeroExit(t *testing.T) {
	spawner := newFakeSpawner()
	q := NewQueue(1, spawner, nil)
	require.NoError(t, q.Enqueue("r1", "ci", nil, nil))

	spawner.process("r1").finish(assert.AnError)
	q.Refresh()

	ev := <-q.Completions()
	assert.Equal(t, "faulted", ev.State)
}

func TestQueueSpawnFailureNotifiesAndDoesNotTrackActive(t *testing.T) {
	spawner := newFakeSpawner()
	notifier := newFakeNotifier()
	q := NewQueue(1, spawner, notifier)
	spawner.spawnErr = assert.AnError

	err := q.Enqueue("r1", "ci", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, q.ActiveCount())
	assert.True(t, notifier.saw("r1"))
}
