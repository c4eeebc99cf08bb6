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

package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Transport is the CLI's HTTP transport to a bld server, always over TCP
// (§6 names no Unix socket transport; a bld server's intake is a plain
// host:port HTTP listener).
type Transport struct {
	// TLSConfig is the TLS configuration for HTTPS connections. Nil uses
	// plain HTTP, matching a server with no tls block configured.
	TLSConfig *tls.Config
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.httpTransport().RoundTrip(req)
}

func (t *Transport) httpTransport() *http.Transport {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: 10 * time.Second}
			return d.DialContext(ctx, network, addr)
		},
	}
	if t.TLSConfig != nil {
		transport.TLSClientConfig = t.TLSConfig
	}
	return transport
}

// NewTCPTransport creates a plain-HTTP transport.
func NewTCPTransport() *Transport {
	return &Transport{}
}

// NewTLSTransport creates a transport for an HTTPS-fronted server.
func NewTLSTransport(tlsConfig *tls.Config) *Transport {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &Transport{TLSConfig: tlsConfig}
}
