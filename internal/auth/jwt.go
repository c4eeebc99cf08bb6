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

// Package auth issues and verifies the bearer tokens the server's
// authenticated routes (§6 HTTP surface) require.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kani-maki-gang/bld/internal/blderr"
)

// Claims identifies who a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	User string `json:"user,omitempty"`
}

// Issuer signs and verifies bearer tokens using the server's configured
// auth_token as an HMAC secret — the same string `bld login` exchanges
// for a token and the server checks requests against.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an Issuer from the server's configured secret. ttl
// defaults to 24h when zero.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for user.
func (i *Issuer) Issue(user string) (string, error) {
	const op = "auth.Issue"

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		User: user,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", blderr.New(blderr.Auth, op, err)
	}
	return signed, nil
}

// Verify validates a bearer token and returns its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	const op = "auth.Verify"

	if tokenString == "" {
		return nil, blderr.New(blderr.Auth, op, fmt.Errorf("empty token"))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, blderr.New(blderr.Auth, op, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, blderr.New(blderr.Auth, op, fmt.Errorf("invalid token"))
	}

	return claims, nil
}
