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

// Package platform implements the four execution targets a pipeline can
// run against: a local shell, a container, an SSH host, and a libvirt
// domain. All four satisfy the same Backend contract so the Runner never
// branches on which one it holds.
package platform

import "context"

// Backend is the uniform contract every platform variant implements.
type Backend interface {
	// ID identifies this platform instance for Run Context bookkeeping.
	ID() string

	// Shell runs cmd in working directory wd with env merged over the
	// platform's base environment, streaming combined stdout/stderr to
	// sink. A non-zero exit is reported via the returned error; callers
	// distinguish it with ExitCode.
	Shell(ctx context.Context, wd, cmd string, env map[string]string, sink Sink) error

	// CopyInto copies the local file or directory at from onto the
	// platform at to.
	CopyInto(ctx context.Context, from, to string) error

	// CopyFrom copies the file or directory at from on the platform to
	// the local path to.
	CopyFrom(ctx context.Context, from, to string) error

	// Dispose releases the platform's resources. When keepAlive is true
	// the underlying resource (e.g. a container) is left running.
	Dispose(ctx context.Context, keepAlive bool) error
}

// Sink receives a platform's shell output. logsink.Sink satisfies this.
type Sink interface {
	Write(line string)
}

// MergeEnv combines pipeline-declared environment with run-level
// environment, per the shared invariant that run-level keys win.
func MergeEnv(pipelineEnv, runEnv map[string]string) map[string]string {
	merged := make(map[string]string, len(pipelineEnv)+len(runEnv))
	for k, v := range pipelineEnv {
		merged[k] = v
	}
	for k, v := range runEnv {
		merged[k] = v
	}
	return merged
}

// ExitError wraps a non-zero exit status from a Shell call.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "platform: shell command exited non-zero"
}

// ExitCode returns the wrapped exit code, or -1 if err is not an *ExitError.
func ExitCode(err error) int {
	if ee, ok := err.(*ExitError); ok {
		return ee.Code
	}
	return -1
}
