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

package model

import "os/exec"

// Worker describes one queued or running pipeline execution from the
// supervisor's point of view. It is never shared between active and
// backlog: a Worker is moved, not copied, between the two collections.
type Worker struct {
	RunID       string
	Pipeline    string
	Variables   map[string]string
	Environment map[string]string

	// Cmd is nil while the worker sits in the backlog and is set the
	// moment it is spawned into active.
	Cmd *exec.Cmd
}

// Enqueue is the payload the server forwards to the supervisor over the
// control channel to request a new run.
type Enqueue struct {
	RunID       string
	Pipeline    string
	Inputs      map[string]string
	Environment map[string]string
}
