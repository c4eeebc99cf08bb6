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

package tokencache

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keychainService = "bld"

// KeychainBackend stores tokens in the OS keychain (macOS Keychain Access,
// Linux Secret Service, Windows Credential Manager).
type KeychainBackend struct {
	available bool
}

// NewKeychainBackend probes the keyring service once so a locked or
// missing keychain is detected up front rather than on every Get.
func NewKeychainBackend() *KeychainBackend {
	backend := &KeychainBackend{available: true}

	_, err := keyring.Get(keychainService, "__bld_availability_test__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		backend.available = false
	}

	return backend
}

// Available reports whether the keychain service answered the probe.
func (k *KeychainBackend) Available() bool {
	return k.available
}

func (k *KeychainBackend) Get(ctx context.Context, server string) (string, error) {
	if !k.available {
		return "", fmt.Errorf("%w: keychain unavailable", ErrNotFound)
	}
	value, err := keyring.Get(keychainService, server)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keychain: %w", err)
	}
	return value, nil
}

func (k *KeychainBackend) Set(ctx context.Context, server, token string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain unavailable", ErrNotFound)
	}
	return keyring.Set(keychainService, server, token)
}

func (k *KeychainBackend) Delete(ctx context.Context, server string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain unavailable", ErrNotFound)
	}
	if err := keyring.Delete(keychainService, server); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("keychain: %w", err)
	}
	return nil
}
