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

// Package expr evaluates ${{ }} expressions against a run's read/write
// context: a compiled-regex template layer over an expr-lang evaluator.
package expr

import "sync"

// Context is the expression evaluation environment for one run: an
// immutable read side (bld/runtime/inputs/env) and a mutable write side
// (per-step outputs, keyed by job then step id) that grows as steps
// complete.
type Context struct {
	mu sync.RWMutex

	bld     map[string]any
	runtime map[string]any
	inputs  map[string]any
	env     map[string]any

	// jobs[job][stepID]["outputs"][key] = value
	jobs map[string]map[string]map[string]any
}

// NewContext builds the read-only side of the context from config,
// inputs, environment and run identity, per §4.D step 4.
func NewContext(rootDir, projectDir, runID string, startTime string, inputs, env map[string]string) *Context {
	c := &Context{
		bld: map[string]any{
			"root_dir":    rootDir,
			"project_dir": projectDir,
		},
		runtime: map[string]any{
			"id":         runID,
			"start_time": startTime,
		},
		inputs: toAnyMap(inputs),
		env:    toAnyMap(env),
		jobs:   make(map[string]map[string]map[string]any),
	}
	return c
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RecordOutputs stores a step's declared key=value outputs so later
// expressions can reference `jobs.<job>.steps.<id>.outputs.<key>`.
func (c *Context) RecordOutputs(job, stepID string, outputs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps, ok := c.jobs[job]
	if !ok {
		steps = make(map[string]map[string]any)
		c.jobs[job] = steps
	}
	steps[stepID] = map[string]any{"outputs": toAnyMap(outputs)}
}

// env builds the flat map expr-lang evaluates identifiers against,
// mirroring the path-walk the evaluator grammar describes: `jobs`,
// `steps` (the current job's steps, for same-job references without
// the `jobs.<name>.` prefix), `bld`, `runtime`, `inputs`, `env`.
func (c *Context) env(currentJob string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	jobsCopy := make(map[string]any, len(c.jobs))
	for job, steps := range c.jobs {
		stepsCopy := make(map[string]any, len(steps))
		for id, v := range steps {
			stepsCopy[id] = v
		}
		jobsCopy[job] = map[string]any{"steps": stepsCopy}
	}

	env := map[string]any{
		"bld":     c.bld,
		"runtime": c.runtime,
		"inputs":  c.inputs,
		"env":     c.env,
		"jobs":    jobsCopy,
	}

	if steps, ok := c.jobs[currentJob]; ok {
		stepsCopy := make(map[string]any, len(steps))
		for id, v := range steps {
			stepsCopy[id] = v
		}
		env["steps"] = stepsCopy
	} else {
		env["steps"] = map[string]any{}
	}

	return env
}
