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

// Package runcontext tracks the resources a single pipeline run owns —
// platform instances and delegated remote runs — guaranteeing they are
// torn down exactly once regardless of whether the run finished normally
// or was stopped.
package runcontext

import (
	"context"
	"log/slog"
)

// Platform is the subset of platform.Backend the Run Context needs to
// tear one down; it is defined here rather than imported to avoid a
// dependency cycle between runcontext and platform.
type Platform interface {
	ID() string
	Dispose(ctx context.Context, keepAlive bool) error
}

// RemoteStopper stops a run on a remote bld server, used when an
// `external` step with `server` delegates execution elsewhere.
type RemoteStopper interface {
	StopRemoteRun(ctx context.Context, server, runID string) error
}

type opKind int

const (
	opAddPlatform opKind = iota
	opRemovePlatform
	opAddRemoteRun
	opRemoveRemoteRun
	opCleanup
)

type remoteRun struct {
	server string
	runID  string
}

type message struct {
	kind     opKind
	platform Platform
	platfID  string
	remote   remoteRun
	remoteID string
	keepAliv bool
	reply    chan error
}

// Context is a single-owner actor: all mutation of its platform/remote-run
// sets is serialized through one goroutine reading from a bounded
// channel, eliminating races between a step's normal completion and an
// external stop signal.
type Context struct {
	runID    string
	stopper  RemoteStopper
	logger   *slog.Logger
	inbox    chan message
	done     chan struct{}
	keepAliv bool
}

// New starts a Run Context actor for runID. dispose is called with
// keepAlive set to the pipeline document's `dispose` flag negated
// (dispose: false ⇒ keepAlive true) whenever cleanup runs without an
// explicit override.
func New(runID string, stopper RemoteStopper, logger *slog.Logger, defaultKeepAlive bool) *Context {
	c := &Context{
		runID:    runID,
		stopper:  stopper,
		logger:   logger,
		inbox:    make(chan message, 16),
		done:     make(chan struct{}),
		keepAliv: defaultKeepAlive,
	}
	go c.run()
	return c
}

func (c *Context) run() {
	defer close(c.done)

	platforms := make(map[string]Platform)
	remotes := make(map[string]remoteRun)

	for msg := range c.inbox {
		switch msg.kind {
		case opAddPlatform:
			platforms[msg.platform.ID()] = msg.platform
			msg.reply <- nil

		case opRemovePlatform:
			delete(platforms, msg.platfID)
			msg.reply <- nil

		case opAddRemoteRun:
			remotes[msg.remote.runID] = msg.remote
			msg.reply <- nil

		case opRemoveRemoteRun:
			delete(remotes, msg.remoteID)
			msg.reply <- nil

		case opCleanup:
			ctx := context.Background()
			for _, p := range platforms {
				if err := p.Dispose(ctx, msg.keepAliv); err != nil && c.logger != nil {
					c.logger.Warn("platform dispose failed", "run_id", c.runID, "platform_id", p.ID(), "error", err)
				}
			}
			platforms = make(map[string]Platform)

			for _, r := range remotes {
				if c.stopper == nil {
					continue
				}
				if err := c.stopper.StopRemoteRun(ctx, r.server, r.runID); err != nil && c.logger != nil {
					c.logger.Warn("remote stop failed", "run_id", c.runID, "remote_run_id", r.runID, "error", err)
				}
			}
			remotes = make(map[string]remoteRun)

			msg.reply <- nil
			return
		}
	}
}

// AddPlatform registers a platform instance created during the run.
// Idempotent: re-adding the same id overwrites the previous entry.
func (c *Context) AddPlatform(p Platform) {
	reply := make(chan error, 1)
	c.inbox <- message{kind: opAddPlatform, platform: p, reply: reply}
	<-reply
}

// RemovePlatform unregisters a platform instance by id. Idempotent.
func (c *Context) RemovePlatform(id string) {
	reply := make(chan error, 1)
	c.inbox <- message{kind: opRemovePlatform, platfID: id, reply: reply}
	<-reply
}

// AddRemoteRun records a run delegated to another server, so cleanup can
// cancel it too.
func (c *Context) AddRemoteRun(server, runID string) {
	reply := make(chan error, 1)
	c.inbox <- message{kind: opAddRemoteRun, remote: remoteRun{server: server, runID: runID}, reply: reply}
	<-reply
}

// RemoveRemoteRun drops a remote run once it reaches terminal state on
// its own.
func (c *Context) RemoveRemoteRun(runID string) {
	reply := make(chan error, 1)
	c.inbox <- message{kind: opRemoveRemoteRun, remoteID: runID, reply: reply}
	<-reply
}

// Cleanup disposes every registered platform and stops every delegated
// remote run, then shuts the actor down. It blocks until teardown
// completes, guaranteeing the worker process never exits before cleanup
// finishes. keepAlive overrides the pipeline's default dispose behavior
// (used when a container is meant to survive a successful run).
func (c *Context) Cleanup(keepAlive bool) {
	reply := make(chan error, 1)
	c.inbox <- message{kind: opCleanup, keepAliv: keepAlive, reply: reply}
	<-reply
	close(c.inbox)
	<-c.done
}

// DefaultKeepAlive returns the keep-alive value Cleanup should be called
// with when no step-level override applies, derived from the pipeline's
// `dispose` flag (dispose: false ⇒ keep resources alive).
func (c *Context) DefaultKeepAlive() bool {
	return c.keepAliv
}
