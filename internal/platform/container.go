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

package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Container runs steps via docker exec against one long-lived container
// created for the run, per the "create once, exec per step" contract.
type Container struct {
	cli         client.APIClient
	containerID string
	baseEnv     map[string]string
	defaultWD   string
}

// NewContainer creates (pulling the image if absent) and starts a
// container for the run, attaching baseEnv as the initial environment.
func NewContainer(ctx context.Context, cli client.APIClient, image string, baseEnv map[string]string, defaultWD string) (*Container, error) {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err != nil {
		rc, pullErr := cli.ImagePull(ctx, image, types.ImagePullOptions{})
		if pullErr != nil {
			return nil, fmt.Errorf("platform: pull image %q: %w", image, pullErr)
		}
		_, _ = io.Copy(io.Discard, rc)
		rc.Close()
	}

	resp, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image: image,
			Env:   envSlice(baseEnv),
			Tty:   false,
			// Keep the container alive between exec calls: the run's
			// actual work happens over ContainerExecAttach, not the
			// container's own entrypoint.
			Entrypoint: []string{"sleep"},
			Cmd:        []string{"infinity"},
		},
		nil, nil, nil, "",
	)
	if err != nil {
		return nil, fmt.Errorf("platform: create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("platform: start container: %w", err)
	}

	return &Container{cli: cli, containerID: resp.ID, baseEnv: baseEnv, defaultWD: defaultWD}, nil
}

func (c *Container) ID() string { return c.containerID }

func (c *Container) Shell(ctx context.Context, wd, cmd string, env map[string]string, sink Sink) error {
	workDir := wd
	if workDir == "" {
		workDir = c.defaultWD
	}

	execResp, err := c.cli.ContainerExecCreate(ctx, c.containerID, types.ExecConfig{
		Cmd:          []string{"sh", "-c", cmd},
		Env:          envSlice(MergeEnv(c.baseEnv, env)),
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("platform: exec create: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return fmt.Errorf("platform: exec attach: %w", err)
	}
	defer attach.Close()

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, attach.Reader)
		pw.CloseWithError(copyErr)
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink.Write(scanner.Text())
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return fmt.Errorf("platform: exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return &ExitError{Code: inspect.ExitCode}
	}
	return nil
}

func (c *Container) CopyInto(ctx context.Context, from, to string) error {
	reader, err := tarOf(from)
	if err != nil {
		return fmt.Errorf("platform: tar copy source: %w", err)
	}
	defer reader.Close()
	return c.cli.CopyToContainer(ctx, c.containerID, to, reader, types.CopyToContainerOptions{})
}

func (c *Container) CopyFrom(ctx context.Context, from, to string) error {
	rc, _, err := c.cli.CopyFromContainer(ctx, c.containerID, from)
	if err != nil {
		return fmt.Errorf("platform: copy from container: %w", err)
	}
	defer rc.Close()
	return untarTo(rc, to)
}

// Dispose stops and removes the container unless keepAlive is set.
func (c *Container) Dispose(ctx context.Context, keepAlive bool) error {
	if keepAlive {
		return nil
	}
	timeout := 0
	_ = c.cli.ContainerStop(ctx, c.containerID, container.StopOptions{Timeout: &timeout})
	return c.cli.ContainerRemove(ctx, c.containerID, types.ContainerRemoveOptions{Force: true})
}
