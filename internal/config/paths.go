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

package config

import "path/filepath"

// Dir is the name of the per-project bld directory created by `bld init`.
const Dir = ".bld"

// FileName is the name of the config file within Dir.
const FileName = "config.yaml"

// PathIn returns the config file path rooted at projectDir.
func PathIn(projectDir string) string {
	return filepath.Join(projectDir, Dir, FileName)
}
