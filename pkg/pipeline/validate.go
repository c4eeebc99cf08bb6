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

package pipeline

import (
	"fmt"

	"github.com/kani-maki-gang/bld/internal/blderr"
	"github.com/kani-maki-gang/bld/pkg/pipeline/expr"
)

// FileSystem is the minimal surface Validate and dependency resolution
// need to check that a locally referenced pipeline or action exists.
type FileSystem interface {
	Exists(path string) bool
}

// Validate checks the structural invariants of §4.D step 2: declared
// expressions reference known identifiers, external `uses` resolve
// locally or name a configured server, artifact `after` names a real
// step, and structured step ids are unique within their job.
func Validate(doc *Document, fs FileSystem, knownServers map[string]bool) error {
	const op = "pipeline.Validate"

	for job, steps := range doc.Jobs {
		seen := make(map[string]bool)
		stepNames := make(map[string]bool)

		for _, step := range steps {
			switch step.Kind {
			case StepShell:
				if err := validateExpressions(step.Shell); err != nil {
					return blderr.New(blderr.PipelineInvalid, op, fmt.Errorf("job %q: %w", job, err))
				}

			case StepComplex:
				c := step.Complex
				if c.ID != "" {
					if seen[c.ID] {
						return blderr.New(blderr.PipelineInvalid, op,
							fmt.Errorf("job %q: duplicate step id %q", job, c.ID))
					}
					seen[c.ID] = true
				}
				if c.Name != "" {
					stepNames[c.Name] = true
				}
				if err := validateExpressions(c.Run); err != nil {
					return blderr.New(blderr.PipelineInvalid, op, fmt.Errorf("job %q step %q: %w", job, c.ID, err))
				}
				if c.Condition != "" {
					if err := validateExpressions(c.Condition); err != nil {
						return blderr.New(blderr.PipelineInvalid, op, fmt.Errorf("job %q step %q condition: %w", job, c.ID, err))
					}
				}

			case StepExternal:
				e := step.External
				if e.Server != "" {
					if !knownServers[e.Server] {
						return blderr.New(blderr.PipelineInvalid, op,
							fmt.Errorf("job %q: external step references unconfigured server %q", job, e.Server))
					}
				} else if fs != nil && !fs.Exists(e.Uses) {
					return blderr.New(blderr.PipelineInvalid, op,
						fmt.Errorf("job %q: external step uses %q which does not exist locally", job, e.Uses))
				}
			}
		}

		for _, a := range doc.Artifacts {
			if a.After != "" && !stepNames[a.After] {
				return blderr.New(blderr.PipelineInvalid, op,
					fmt.Errorf("job %q: artifact after %q does not name a step", job, a.After))
			}
		}
	}

	return nil
}

// validateExpressions checks every ${{ ... }} occurrence in text parses,
// without evaluating it against a runtime context (full identifier
// resolution happens at execution time, once inputs/env/outputs are
// bound).
func validateExpressions(text string) error {
	_, err := expr.ParseTemplate(text)
	return err
}
