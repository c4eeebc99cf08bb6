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
)

// Source reads a named pipeline's raw YAML source, local to the caller
// (a pushed pipeline's working directory, or the server's pipeline store).
type Source interface {
	Read(name string) (string, error)
}

// LocalUses returns the uses-targets of every external step across all
// jobs that has no server set — the edges of the local dependency graph.
func LocalUses(doc *Document) []string {
	var uses []string
	for _, steps := range doc.Jobs {
		for _, s := range steps {
			if s.Kind == StepExternal && s.External.Server == "" {
				uses = append(uses, s.External.Uses)
			}
		}
	}
	for _, e := range doc.External {
		if e.Server == "" {
			uses = append(uses, e.Uses)
		}
	}
	return uses
}

// Dependencies recursively loads every local external.uses reachable from
// the pipeline named name, returning its transitive closure as a map of
// name to raw source, per §4.D step 3. name itself is excluded from the
// result.
func Dependencies(src Source, name string) (map[string]string, error) {
	set := make(map[string]string)
	if err := dependenciesRecursive(src, name, set); err != nil {
		return nil, err
	}
	delete(set, name)
	return set, nil
}

func dependenciesRecursive(src Source, name string, set map[string]string) error {
	const op = "pipeline.Dependencies"

	if _, already := set[name]; already {
		return nil
	}

	raw, err := src.Read(name)
	if err != nil {
		return blderr.New(blderr.PipelineNotFound, op, fmt.Errorf("pipeline %q not found: %w", name, err))
	}
	set[name] = raw

	doc, err := Parse([]byte(raw))
	if err != nil {
		return err
	}

	for _, uses := range LocalUses(doc) {
		if err := dependenciesRecursive(src, uses, set); err != nil {
			return err
		}
	}

	return nil
}
