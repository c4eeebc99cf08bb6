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

// Package localsource adapts a directory of "<name>.yaml" files to
// pkg/pipeline's Source interface, so `bld push`/`bld pull` can resolve a
// pipeline's local dependency graph the same way the server resolves its
// pushed one.
package localsource

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir reads pipeline documents from "<name>.yaml" files under a directory.
type Dir struct {
	path string
}

// New creates a Dir rooted at path.
func New(path string) *Dir {
	return &Dir{path: path}
}

// Read implements pkg/pipeline.Source.
func (d *Dir) Read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.path, name+".yaml"))
	if err != nil {
		return "", fmt.Errorf("read %s.yaml: %w", name, err)
	}
	return string(data), nil
}
