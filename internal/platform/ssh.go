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
	"errors"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSHAuth selects how SSH authenticates, mirroring the three auth modes
// the spec names: an ssh-agent, a password, or an explicit key pair.
type SSHAuth struct {
	Agent            bool
	Password         string
	PublicKeyPath    string
	PrivateKeyPath   string
}

// SSH runs steps on a remote host over a single open session-generating
// connection, one exec per Shell call.
type SSH struct {
	client *ssh.Client
	host   string
}

// NewSSH dials host:port and authenticates per auth.
func NewSSH(host string, port int, user string, auth SSHAuth) (*SSH, error) {
	authMethods, err := sshAuthMethods(auth)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: the core's threat model is CI infra it controls, not untrusted hosts
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("platform: ssh dial %s: %w", addr, err)
	}

	return &SSH{client: client, host: addr}, nil
}

func sshAuthMethods(auth SSHAuth) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if auth.Agent {
		sock, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
		if err != nil {
			return nil, fmt.Errorf("platform: connect to ssh-agent: %w", err)
		}
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(sock).Signers))
	}

	if auth.Password != "" {
		methods = append(methods, ssh.Password(auth.Password))
	}

	if auth.PrivateKeyPath != "" {
		key, err := os.ReadFile(auth.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("platform: read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("platform: parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, errors.New("platform: no ssh authentication method configured")
	}
	return methods, nil
}

func (s *SSH) ID() string { return s.host }

func (s *SSH) Shell(ctx context.Context, wd, cmd string, env map[string]string, sink Sink) error {
	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("platform: open ssh session: %w", err)
	}
	defer session.Close()

	for k, v := range env {
		if err := session.Setenv(k, v); err != nil {
			// Many sshd configs reject Setenv outright (AcceptEnv unset);
			// fall back to inlining the assignment in the command below.
			continue
		}
	}

	full := cmd
	if wd != "" {
		full = fmt.Sprintf("cd %s && %s", shellQuote(wd), cmd)
	}
	if len(env) > 0 {
		full = inlineEnv(env) + full
	}

	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink.Write(scanner.Text())
		}
	}()

	runErr := session.Run(full)
	pw.Close()
	<-done

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitStatus()}
		}
		return fmt.Errorf("platform: ssh command failed: %w", runErr)
	}
	return nil
}

func inlineEnv(env map[string]string) string {
	s := ""
	for k, v := range env {
		s += fmt.Sprintf("export %s=%s; ", k, shellQuote(v))
	}
	return s
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

// CopyInto sends a single file over an SCP-like session. Directory
// transfer is unsupported, per the shared SSH contract.
func (s *SSH) CopyInto(ctx context.Context, from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return fmt.Errorf("platform: stat copy source: %w", err)
	}
	if info.IsDir() {
		return errors.New("platform: ssh copy does not support directories")
	}

	f, err := os.Open(from)
	if err != nil {
		return err
	}
	defer f.Close()

	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("platform: open ssh session: %w", err)
	}
	defer session.Close()

	w, err := session.StdinPipe()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(fmt.Sprintf("cat > %s", shellQuote(to)))
	}()

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return err
	}
	w.Close()

	return <-errCh
}

// CopyFrom retrieves a single remote file. Directory transfer is
// unsupported.
func (s *SSH) CopyFrom(ctx context.Context, from, to string) error {
	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("platform: open ssh session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(fmt.Sprintf("cat %s", shellQuote(from)))
	if err != nil {
		return fmt.Errorf("platform: ssh copy from: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return os.WriteFile(to, out, 0o644)
}

// Dispose closes the SSH connection. keepAlive has no meaning for a
// remote host that outlives the run regardless.
func (s *SSH) Dispose(_ context.Context, _ bool) error {
	return s.client.Close()
}
