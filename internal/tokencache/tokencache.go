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

// Package tokencache caches the bearer token `bld login` mints for each
// configured remote server, so later commands don't re-prompt for the
// server's auth_token. It prefers the OS keychain, falling back to an
// encrypted file under .bld/ when no keychain service is reachable
// (headless CI runners, minimal containers).
package tokencache

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no cached token exists for a server.
var ErrNotFound = errors.New("token not cached")

// Backend stores one token per server name.
type Backend interface {
	Get(ctx context.Context, server string) (string, error)
	Set(ctx context.Context, server, token string) error
	Delete(ctx context.Context, server string) error
}

// Cache resolves a server's cached token from the first available backend,
// preferring the system keychain over the encrypted file fallback.
type Cache struct {
	backends []Backend
}

// Open builds a Cache backed by the system keychain (if reachable) and an
// encrypted file at configDir/tokens.enc.
func Open(configDir string) (*Cache, error) {
	c := &Cache{}

	keychain := NewKeychainBackend()
	if keychain.Available() {
		c.backends = append(c.backends, keychain)
	}

	file, err := NewFileBackend(configDir)
	if err != nil {
		return nil, fmt.Errorf("tokencache: open file backend: %w", err)
	}
	c.backends = append(c.backends, file)

	return c, nil
}

// Get returns the cached token for server, trying each backend in order.
func (c *Cache) Get(ctx context.Context, server string) (string, error) {
	for _, b := range c.backends {
		token, err := b.Get(ctx, server)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotFound) {
			continue
		}
	}
	return "", ErrNotFound
}

// Set stores token for server in the highest-priority backend (keychain
// when available, otherwise the encrypted file).
func (c *Cache) Set(ctx context.Context, server, token string) error {
	if len(c.backends) == 0 {
		return fmt.Errorf("tokencache: no backend available")
	}
	return c.backends[0].Set(ctx, server, token)
}

// Delete removes server's cached token from every backend.
func (c *Cache) Delete(ctx context.Context, server string) error {
	var firstErr error
	for _, b := range c.backends {
		if err := b.Delete(ctx, server); err != nil && !errors.Is(err, ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
