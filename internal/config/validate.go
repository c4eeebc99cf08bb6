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

import "fmt"

// Validate checks cfg for structurally invalid values that would break a
// later operation rather than fail fast at load time.
func Validate(cfg *Config) error {
	if cfg.Local.Supervisor.Workers < 0 {
		return fmt.Errorf("local.supervisor.workers must not be negative")
	}
	if cfg.Local.Server.Port < 0 || cfg.Local.Server.Port > 65535 {
		return fmt.Errorf("local.server.port out of range: %d", cfg.Local.Server.Port)
	}
	if cfg.Local.Supervisor.Port < 0 || cfg.Local.Supervisor.Port > 65535 {
		return fmt.Errorf("local.supervisor.port out of range: %d", cfg.Local.Supervisor.Port)
	}

	seen := make(map[string]struct{}, len(cfg.Remote))
	for _, r := range cfg.Remote {
		if r.Name == "" {
			return fmt.Errorf("remote server entry missing name")
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate remote server name: %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	return nil
}
