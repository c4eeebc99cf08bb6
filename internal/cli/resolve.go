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

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kani-maki-gang/bld/internal/client"
	"github.com/kani-maki-gang/bld/internal/config"
	"github.com/kani-maki-gang/bld/internal/tokencache"
)

// Target names a bld server a CLI command should talk to: either the
// project's own local.server (the --server flag omitted) or a named entry
// under config.Remote.
type Target struct {
	// Name is the token cache key: "local" or the remote's configured name.
	Name    string
	BaseURL string
}

// LoadConfig reads the config file at configPath, or the project-local
// .bld/config.yaml when configPath is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		configPath = config.PathIn(wd)
	}
	return config.Load(configPath)
}

// ResolveTarget turns a --server flag value into a connectable Target.
// An empty server name resolves to the project's local.server.
func ResolveTarget(cfg *config.Config, server string) (Target, error) {
	if server == "" {
		return Target{
			Name:    "local",
			BaseURL: fmt.Sprintf("http://%s:%d", cfg.Local.Server.Host, cfg.Local.Server.Port),
		}, nil
	}

	remote, err := cfg.FindRemote(server)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Name:    remote.Name,
		BaseURL: fmt.Sprintf("http://%s:%d", remote.Host, remote.Port),
	}, nil
}

// OpenTokenCache opens the CLI's token cache rooted at the project's .bld
// directory (next to config.yaml).
func OpenTokenCache(configPath string) (*tokencache.Cache, error) {
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		configPath = config.PathIn(wd)
	}
	return tokencache.Open(filepath.Dir(configPath))
}

// NewClient builds a REST client for target, attaching a cached bearer
// token when the cache has one. A missing token is not an error: it just
// means the target server runs without auth, or `bld login` hasn't run yet.
func NewClient(ctx context.Context, cache *tokencache.Cache, target Target) (*client.Client, error) {
	var opts []client.Option
	if cache != nil {
		if token, err := cache.Get(ctx, target.Name); err == nil {
			opts = append(opts, client.WithToken(token))
		}
	}
	return client.New(target.BaseURL, opts...)
}
