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
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/digitalocean/go-libvirt"
)

// Libvirt runs steps inside an existing domain by writing to its serial
// console, the only execution channel the spec grants this variant. Copy
// operations are unsupported.
type Libvirt struct {
	conn       net.Conn
	lv         *libvirt.Libvirt
	domain     libvirt.Domain
	startedBy  bool // true if this run started the domain and should stop it
}

// NewLibvirt connects to uri, looks up the named domain, and optionally
// starts it if it is not already running.
func NewLibvirt(ctx context.Context, uri, domainName string, startIfStopped bool) (*Libvirt, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("platform: parse libvirt uri: %w", err)
	}

	network := "unix"
	address := parsed.Path
	if parsed.Scheme == "qemu+tcp" || parsed.Scheme == "tcp" {
		network = "tcp"
		address = parsed.Host
	}

	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("platform: dial libvirt at %s: %w", uri, err)
	}

	lv := libvirt.New(conn)
	if err := lv.Connect(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("platform: libvirt connect: %w", err)
	}

	domain, err := lv.DomainLookupByName(domainName)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("platform: look up domain %q: %w", domainName, err)
	}

	started := false
	if startIfStopped {
		active, err := lv.DomainIsActive(domain)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("platform: check domain state: %w", err)
		}
		if active == 0 {
			if err := lv.DomainCreate(domain); err != nil {
				conn.Close()
				return nil, fmt.Errorf("platform: start domain: %w", err)
			}
			started = true
		}
	}

	return &Libvirt{conn: conn, lv: lv, domain: domain, startedBy: started}, nil
}

func (l *Libvirt) ID() string { return l.domain.Name }

// Shell writes cmd to the domain's serial console and reads its output
// back over the same stream. env is inlined as shell export statements
// since the console has no out-of-band channel to carry it.
func (l *Libvirt) Shell(_ context.Context, wd, cmd string, env map[string]string, sink Sink) error {
	stream, err := l.lv.NewStream(0)
	if err != nil {
		return fmt.Errorf("platform: open console stream: %w", err)
	}
	defer stream.Abort() //nolint: best-effort close, the command has already run by the time this fires

	if err := l.lv.DomainOpenConsole(l.domain, libvirt.OptString{}, stream, uint32(0)); err != nil {
		return fmt.Errorf("platform: open domain console: %w", err)
	}

	full := cmd
	if wd != "" {
		full = fmt.Sprintf("cd %s && %s", shellQuote(wd), cmd)
	}
	if len(env) > 0 {
		full = inlineEnv(env) + full
	}

	if _, err := stream.Write([]byte(full + "\n")); err != nil {
		return fmt.Errorf("platform: write to console: %w", err)
	}

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink.Write(scanner.Text())
	}

	// The serial console has no structured exit-status channel; a
	// command's success is inferred only from the absence of a stream
	// error, matching the spec's admission that libvirt exec is best
	// effort.
	return nil
}

func (l *Libvirt) CopyInto(_ context.Context, _, _ string) error {
	return errors.New("platform: libvirt does not support copy operations")
}

func (l *Libvirt) CopyFrom(_ context.Context, _, _ string) error {
	return errors.New("platform: libvirt does not support copy operations")
}

// Dispose shuts the domain down if this run started it, then closes the
// connection. keepAlive suppresses the shutdown.
func (l *Libvirt) Dispose(_ context.Context, keepAlive bool) error {
	if l.startedBy && !keepAlive {
		if err := l.lv.DomainShutdown(l.domain); err != nil {
			l.conn.Close()
			return fmt.Errorf("platform: shutdown domain: %w", err)
		}
	}
	return l.conn.Close()
}
