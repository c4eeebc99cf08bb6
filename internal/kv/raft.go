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

package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// command is the payload appended to the raft log for every mutation.
type command struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// fsm applies committed commands to an in-memory map. It is the
// consensus-replicated counterpart of MemoryStore's backing map.
type fsm struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (f *fsm) Apply(log *raft.Log) any {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("kv: decode raft command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "put":
		f.data[cmd.Key] = cmd.Value
	case "delete":
		delete(f.data, cmd.Key)
	default:
		return fmt.Errorf("kv: unknown raft op %q", cmd.Op)
	}
	return nil
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		snap[k] = v
	}
	return &fsmSnapshot{data: snap}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data map[string][]byte
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	return nil
}

func (f *fsm) get(key string) ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok
}

type fsmSnapshot struct {
	data map[string][]byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		b, err := json.Marshal(s.data)
		if err != nil {
			return err
		}
		if _, err := sink.Write(b); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}

// RaftStore is a Store backed by hashicorp/raft, for deployments that want
// the metadata replicated across nodes. The consensus wire protocol is
// raft's own; bld only depends on the Store interface above it.
type RaftStore struct {
	raft *raft.Raft
	fsm  *fsm
}

// RaftConfig configures a single RaftStore node.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// Bootstrap starts a brand-new single-member cluster. Joining an
	// existing cluster is an operator action outside this package.
	Bootstrap bool
}

// NewRaftStore starts (or rejoins) a raft node persisting its log and
// snapshots under cfg.DataDir.
func NewRaftStore(cfg RaftConfig) (*RaftStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create data dir: %w", err)
	}

	store := &fsm{data: make(map[string][]byte)}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("kv: open raft log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("kv: open raft stable store: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("kv: open raft snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("kv: create raft transport: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, store, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("kv: start raft: %w", err)
	}

	if cfg.Bootstrap {
		r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
		})
	}

	return &RaftStore{raft: r, fsm: store}, nil
}

func (s *RaftStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.fsm.get(key)
	return v, ok, nil
}

func (s *RaftStore) Put(_ context.Context, key string, value []byte) error {
	cmd, err := json.Marshal(command{Op: "put", Key: key, Value: value})
	if err != nil {
		return err
	}
	return s.raft.Apply(cmd, 5*time.Second).Error()
}

func (s *RaftStore) Delete(_ context.Context, key string) error {
	cmd, err := json.Marshal(command{Op: "delete", Key: key})
	if err != nil {
		return err
	}
	return s.raft.Apply(cmd, 5*time.Second).Error()
}

func (s *RaftStore) Status() Status {
	role := RoleFollower
	if s.raft.State() == raft.Leader {
		role = RoleLeader
	}

	var members []string
	if cfg := s.raft.GetConfiguration(); cfg.Error() == nil {
		for _, srv := range cfg.Configuration().Servers {
			members = append(members, string(srv.ID))
		}
	}

	return Status{Role: role, Members: members}
}

func (s *RaftStore) Close() error {
	return s.raft.Shutdown().Error()
}
