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

// Package fs is the FileSystem facade pipeline sources are read through:
// the worker's local pipeline file, or the server's pushed-pipeline
// store. Both satisfy pkg/pipeline.Source.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kani-maki-gang/bld/internal/blderr"
)

// ServerStore is the server-side pipeline store: `.bld/server_pipelines/
// {name}.yaml`, the target of push/pull/list/inspect/rm.
type ServerStore struct {
	dir string
}

// NewServerStore opens (creating if absent) the pipeline store rooted at dir.
func NewServerStore(dir string) (*ServerStore, error) {
	const op = "fs.NewServerStore"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, blderr.New(blderr.Io, op, err)
	}
	return &ServerStore{dir: dir}, nil
}

func (s *ServerStore) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid pipeline name %q", name)
	}
	return filepath.Join(s.dir, name+".yaml"), nil
}

// Read returns a pushed pipeline's raw YAML source.
func (s *ServerStore) Read(name string) (string, error) {
	const op = "fs.ServerStore.Read"

	p, err := s.path(name)
	if err != nil {
		return "", blderr.New(blderr.PipelineNotFound, op, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", blderr.New(blderr.PipelineNotFound, op, fmt.Errorf("pipeline %q not found", name))
		}
		return "", blderr.New(blderr.Io, op, err)
	}
	return string(data), nil
}

// Write stores content as the named pipeline's source, overwriting any
// existing version. Used by `push`.
func (s *ServerStore) Write(name, content string) error {
	const op = "fs.ServerStore.Write"

	p, err := s.path(name)
	if err != nil {
		return blderr.New(blderr.PipelineInvalid, op, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return blderr.New(blderr.Io, op, err)
	}
	return nil
}

// Remove deletes a pushed pipeline. Used by `rm`.
func (s *ServerStore) Remove(name string) error {
	const op = "fs.ServerStore.Remove"

	p, err := s.path(name)
	if err != nil {
		return blderr.New(blderr.PipelineInvalid, op, err)
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return blderr.New(blderr.PipelineNotFound, op, fmt.Errorf("pipeline %q not found", name))
		}
		return blderr.New(blderr.Io, op, err)
	}
	return nil
}

// List returns every pushed pipeline's name. Used by `list`.
func (s *ServerStore) List() ([]string, error) {
	const op = "fs.ServerStore.List"

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, blderr.New(blderr.Io, op, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names, nil
}

// Exists reports whether name has been pushed.
func (s *ServerStore) Exists(name string) bool {
	_, err := s.Read(name)
	return err == nil
}

// LocalSource resolves external.uses against files relative to a
// project directory, for the CLI's client-side dependency resolution
// (`push --ignore-deps=false`, `deps`).
type LocalSource struct {
	root string
}

// NewLocalSource roots a LocalSource at dir.
func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{root: dir}
}

// Read reads name relative to the project root. name may include a
// relative path and must resolve inside root.
func (l *LocalSource) Read(name string) (string, error) {
	const op = "fs.LocalSource.Read"

	p := filepath.Join(l.root, name)
	rel, err := filepath.Rel(l.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", blderr.New(blderr.PipelineInvalid, op, fmt.Errorf("pipeline %q escapes project root", name))
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", blderr.New(blderr.PipelineNotFound, op, fmt.Errorf("pipeline %q not found", name))
		}
		return "", blderr.New(blderr.Io, op, err)
	}
	return string(data), nil
}

// Exists reports whether name resolves to a readable file under root.
func (l *LocalSource) Exists(name string) bool {
	_, err := l.Read(name)
	return err == nil
}
