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

// Package config loads the bld CLI configuration tree from .bld/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kani-maki-gang/bld/internal/blderr"
	"gopkg.in/yaml.v3"
)

// Config is the complete local bld configuration.
type Config struct {
	// Version is the config format version.
	Version int `yaml:"version,omitempty"`

	Local  LocalConfig    `yaml:"local"`
	Remote []RemoteServer `yaml:"remote,omitempty"`
}

// LocalConfig configures the services this machine runs.
type LocalConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Docker     DockerConfig     `yaml:"docker,omitempty"`
	Editor     string           `yaml:"editor,omitempty"`
	SSH        SSHConfig        `yaml:"ssh,omitempty"`
	Tracing    TracingConfig    `yaml:"tracing,omitempty"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts,omitempty"`
}

// ArtifactsConfig configures remote artifact transfer for artifacts whose
// from/to names a scheme-qualified URI instead of a platform path.
type ArtifactsConfig struct {
	// S3Region overrides the AWS SDK's resolved region for s3:// artifact
	// transfer. Empty defers to the SDK's default provider chain.
	S3Region string `yaml:"s3_region,omitempty"`
}

// TracingConfig configures this process's OpenTelemetry span export.
// Disabled by default; a worker, supervisor, and server each build
// their own tracing.Provider from it at startup.
type TracingConfig struct {
	// Enabled activates span export.
	Enabled bool `yaml:"enabled,omitempty"`
	// Exporter selects the destination: "console", "otlp", or "otlp-http".
	// Default: "console".
	Exporter string `yaml:"exporter,omitempty"`
	// Endpoint is the OTLP receiver address (unused for "console").
	Endpoint string `yaml:"endpoint,omitempty"`
	// SampleRate is the fraction of runs traced when Enabled (0.0-1.0).
	// Default: 1.0.
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// ServerConfig configures the intake/monitor HTTP server.
type ServerConfig struct {
	// Host the server binds to. Default: localhost
	Host string `yaml:"host,omitempty"`
	// Port the server listens on. Default: 6080
	Port int `yaml:"port,omitempty"`
	// LogsDir is where the Log Sink writes run output. Default: .bld/logs
	LogsDir string `yaml:"logs_dir,omitempty"`
	// DBPath is the sqlite database file for PipelineRun/PipelineRunContainer rows.
	// Default: .bld/db/bld.db
	DBPath string `yaml:"db_path,omitempty"`
	// PipelinesDir is where pushed pipeline documents are stored server-side.
	// Default: .bld/server_pipelines
	PipelinesDir string `yaml:"pipelines_dir,omitempty"`
	// AuthToken, when non-empty, requires a bearer token on authenticated routes.
	AuthToken string `yaml:"auth_token,omitempty"`
}

// SupervisorConfig configures the supervisor's worker queue.
type SupervisorConfig struct {
	// Host the supervisor's control channel binds to. Default: localhost
	Host string `yaml:"host,omitempty"`
	// Port the supervisor listens on. Default: 7080
	Port int `yaml:"port,omitempty"`
	// Workers is the number of concurrently active worker processes. Default: 4
	Workers int `yaml:"workers,omitempty"`
	// ServerURL is the control-channel URL of the server this supervisor registers with.
	ServerURL string `yaml:"server_url,omitempty"`
}

// DockerConfig configures the Container platform variant.
type DockerConfig struct {
	// Host is the Docker daemon socket/address. Empty uses the docker client default.
	Host string `yaml:"host,omitempty"`
	// URL is the default network passed to container create when none is given.
	URL string `yaml:"url,omitempty"`
}

// SSHConfig configures the SSH platform variant's default connection settings.
type SSHConfig struct {
	User           string `yaml:"user,omitempty"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
	Port           int    `yaml:"port,omitempty"`
}

// RemoteServer is a named remote bld server the CLI can target with --server.
type RemoteServer struct {
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port,omitempty"`
	AuthToken string `yaml:"auth_token,omitempty"`
	Same      bool   `yaml:"same,omitempty"`
}

// DefaultConfig returns a Config with the documented defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Local: LocalConfig{
			Server: ServerConfig{
				Host:         "localhost",
				Port:         6080,
				LogsDir:      filepath.Join(".bld", "logs"),
				DBPath:       filepath.Join(".bld", "db", "bld.db"),
				PipelinesDir: filepath.Join(".bld", "server_pipelines"),
			},
			Supervisor: SupervisorConfig{
				Host:    "localhost",
				Port:    7080,
				Workers: 4,
			},
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "console",
				SampleRate: 1.0,
			},
		},
	}
}

// Load reads and unmarshals the config file at path, applying defaults to
// any field the file leaves unset.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, blderr.New(blderr.Io, op, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, blderr.New(blderr.Yaml, op, err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, blderr.New(blderr.Config, op, err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-valued fields the unmarshal left empty,
// the way a partially written config.yaml is still usable.
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Local.Server.Host == "" {
		cfg.Local.Server.Host = defaults.Local.Server.Host
	}
	if cfg.Local.Server.Port == 0 {
		cfg.Local.Server.Port = defaults.Local.Server.Port
	}
	if cfg.Local.Server.LogsDir == "" {
		cfg.Local.Server.LogsDir = defaults.Local.Server.LogsDir
	}
	if cfg.Local.Server.DBPath == "" {
		cfg.Local.Server.DBPath = defaults.Local.Server.DBPath
	}
	if cfg.Local.Server.PipelinesDir == "" {
		cfg.Local.Server.PipelinesDir = defaults.Local.Server.PipelinesDir
	}
	if cfg.Local.Supervisor.Host == "" {
		cfg.Local.Supervisor.Host = defaults.Local.Supervisor.Host
	}
	if cfg.Local.Supervisor.Port == 0 {
		cfg.Local.Supervisor.Port = defaults.Local.Supervisor.Port
	}
	if cfg.Local.Supervisor.Workers == 0 {
		cfg.Local.Supervisor.Workers = defaults.Local.Supervisor.Workers
	}
	if cfg.Local.Tracing.Exporter == "" {
		cfg.Local.Tracing.Exporter = defaults.Local.Tracing.Exporter
	}
	if cfg.Local.Tracing.SampleRate == 0 {
		cfg.Local.Tracing.SampleRate = defaults.Local.Tracing.SampleRate
	}
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	const op = "config.Save"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return blderr.New(blderr.Io, op, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return blderr.New(blderr.Yaml, op, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return blderr.New(blderr.Io, op, err)
	}

	return nil
}

// FindRemote looks up a configured remote server by name.
func (c *Config) FindRemote(name string) (*RemoteServer, error) {
	for i := range c.Remote {
		if c.Remote[i].Name == name {
			return &c.Remote[i], nil
		}
	}
	return nil, blderr.New(blderr.Config, "config.FindRemote", fmt.Errorf("no remote server named %q", name))
}
