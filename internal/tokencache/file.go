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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLength   = 32
	gcmNonceSize      = 12
)

// FileBackend stores tokens in an AES-256-GCM encrypted file, the fallback
// for environments with no reachable OS keychain (CI runners, containers).
type FileBackend struct {
	path      string
	masterKey []byte
	mu        sync.Mutex
}

type encryptedFile struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

// NewFileBackend opens the encrypted token file at configDir/tokens.enc,
// deriving its master key from BLD_MASTER_KEY or configDir/master.key,
// generating the latter on first use.
func NewFileBackend(configDir string) (*FileBackend, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	key, err := resolveMasterKey(configDir)
	if err != nil {
		return nil, err
	}

	return &FileBackend{
		path:      filepath.Join(configDir, "tokens.enc"),
		masterKey: key,
	}, nil
}

func (f *FileBackend) Get(ctx context.Context, server string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	token, ok := tokens[server]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (f *FileBackend) Set(ctx context.Context, server, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if tokens == nil {
		tokens = make(map[string]string)
	}
	tokens[server] = token
	return f.save(tokens)
}

func (f *FileBackend) Delete(ctx context.Context, server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	if _, ok := tokens[server]; !ok {
		return ErrNotFound
	}
	delete(tokens, server)
	return f.save(tokens)
}

func (f *FileBackend) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var enc encryptedFile
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("tokencache: corrupt token file: %w", err)
	}

	key := argon2.IDKey(f.masterKey, enc.Salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("tokencache: decrypt token file: %w", err)
	}

	var tokens map[string]string
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return nil, fmt.Errorf("tokencache: corrupt token file: %w", err)
	}
	return tokens, nil
}

func (f *FileBackend) save(tokens map[string]string) error {
	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key := argon2.IDKey(f.masterKey, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	data, err := json.Marshal(encryptedFile{Salt: salt, Nonce: nonce, Data: ciphertext})
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// resolveMasterKey reads BLD_MASTER_KEY, then configDir/master.key,
// generating a random key file on first use so tokencache works without
// any operator setup.
func resolveMasterKey(configDir string) ([]byte, error) {
	if k := os.Getenv("BLD_MASTER_KEY"); k != "" {
		return []byte(k), nil
	}

	keyPath := filepath.Join(configDir, "master.key")
	if key, err := os.ReadFile(keyPath); err == nil {
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read master key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("write master key: %w", err)
	}
	return key, nil
}
