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

package tracing

// ConfigSource is the subset of internal/config.TracingConfig this
// package needs, named locally so tracing never imports internal/config
// (config already sits below tracing in the dependency graph of the
// binaries that wire both together).
type ConfigSource struct {
	Enabled    bool
	Exporter   string
	Endpoint   string
	SampleRate float64
}

// FromConfigSource builds a Config for one process from its ConfigSource,
// naming the process with serviceName (e.g. "bld-worker").
func FromConfigSource(serviceName string, src ConfigSource) Config {
	cfg := DefaultConfig()
	cfg.ServiceName = serviceName
	cfg.Enabled = src.Enabled
	cfg.Sampling.Enabled = src.Enabled
	if src.SampleRate > 0 {
		cfg.Sampling.Rate = src.SampleRate
	}
	if src.Enabled {
		cfg.Exporters = []ExporterConfig{{
			Type:     src.Exporter,
			Endpoint: src.Endpoint,
		}}
	}
	return cfg
}
