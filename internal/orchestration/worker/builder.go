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

// Package worker is the `worker` subcommand's entrypoint: it loads a
// pipeline, builds a Platform for its runs_on value, drives a
// pkg/pipeline.Runner to completion, and reports terminal state (§4.E
// Worker).
package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/client"

	"github.com/kani-maki-gang/bld/internal/config"
	"github.com/kani-maki-gang/bld/internal/platform"
)

// PlatformBuilder interprets a pipeline's runs_on string per the URI
// convention: `machine` selects a local scratch-dir process, `ssh://...`
// and `libvirt://...` select those variants using the local config's
// connection defaults, and anything else is treated as a container
// image reference.
type PlatformBuilder struct {
	Config *config.Config
	// ScratchRoot is the parent directory Machine backends create their
	// per-run scratch directory under.
	ScratchRoot string
}

// Build implements pkg/pipeline.PlatformBuilder.
func (b *PlatformBuilder) Build(ctx context.Context, runsOn string, baseEnv map[string]string) (platform.Backend, error) {
	switch {
	case runsOn == "" || runsOn == "machine":
		return platform.NewMachine(b.ScratchRoot, baseEnv)

	case strings.HasPrefix(runsOn, "ssh://"):
		return b.buildSSH(runsOn, baseEnv)

	case strings.HasPrefix(runsOn, "libvirt://"), strings.HasPrefix(runsOn, "qemu://"), strings.HasPrefix(runsOn, "qemu+tcp://"):
		return platform.NewLibvirt(ctx, runsOn, domainFromURI(runsOn), true)

	default:
		return b.buildContainer(ctx, runsOn, baseEnv)
	}
}

// buildSSH parses `ssh://[user@]host[:port]/domain-unused` using the
// local config's ssh defaults for any part the URI omits.
func (b *PlatformBuilder) buildSSH(uri string, baseEnv map[string]string) (platform.Backend, error) {
	rest := strings.TrimPrefix(uri, "ssh://")
	user := b.Config.Local.SSH.User
	host := rest
	if at := strings.Index(rest, "@"); at >= 0 {
		user = rest[:at]
		host = rest[at+1:]
	}
	if slash := strings.Index(host, "/"); slash >= 0 {
		host = host[:slash]
	}

	port := b.Config.Local.SSH.Port
	if port == 0 {
		port = 22
	}
	if colon := strings.LastIndex(host, ":"); colon >= 0 {
		fmt.Sscanf(host[colon+1:], "%d", &port)
		host = host[:colon]
	}

	auth := platform.SSHAuth{
		Agent:          b.Config.Local.SSH.PrivateKeyPath == "",
		PrivateKeyPath: b.Config.Local.SSH.PrivateKeyPath,
	}

	return platform.NewSSH(host, port, user, auth)
}

// buildContainer treats runsOn as a docker image reference.
func (b *PlatformBuilder) buildContainer(ctx context.Context, image string, baseEnv map[string]string) (platform.Backend, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if b.Config.Local.Docker.Host != "" {
		opts = append(opts, client.WithHost(b.Config.Local.Docker.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("worker: docker client: %w", err)
	}

	return platform.NewContainer(ctx, cli, image, baseEnv, "")
}

// domainFromURI extracts the libvirt domain name from the URI's path,
// the convention `libvirt:///system/my-domain` follows.
func domainFromURI(uri string) string {
	idx := strings.LastIndex(uri, "/")
	if idx < 0 || idx == len(uri)-1 {
		return ""
	}
	return uri[idx+1:]
}
