// Copyright 2021 IBM Corp.
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

// Package auth provides OAuth2 access tokens for calls to Google Cloud APIs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the scope required by the API Keys API.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// expiryDelta is how long before expiry a token is treated as expired.
const expiryDelta = 10 * time.Second

// Token is an OAuth2 access token.
type Token struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// Valid reports whether the token is non-nil, non-empty and not about to
// expire. A zero Expiry never expires.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(expiryDelta).Before(t.Expiry)
}

// TokenSource returns access tokens.
type TokenSource interface {
	Token() (*Token, error)
}

type staticToken struct {
	t *Token
}

// StaticToken returns a TokenSource that always returns accessToken.
func StaticToken(accessToken string) TokenSource {
	return &staticToken{t: &Token{AccessToken: accessToken, TokenType: "Bearer"}}
}

func (s *staticToken) Token() (*Token, error) {
	if s.t.AccessToken == "" {
		return nil, errors.New("auth: access token is empty")
	}
	return s.t, nil
}

// GoogleCredential caches tokens from Application Default Credentials.
type GoogleCredential struct {
	ctx    context.Context
	scopes []string

	mu  sync.Mutex
	src oauth2.TokenSource
	t   *Token
}

// CredentialFromGoogle returns a TokenSource backed by Application Default
// Credentials. Credentials are looked up on the first call to Token.
func CredentialFromGoogle(ctx context.Context, scopes ...string) *GoogleCredential {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	return &GoogleCredential{ctx: ctx, scopes: scopes}
}

// Token returns the cached token if it is still valid, otherwise a new one.
func (g *GoogleCredential) Token() (*Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.t.Valid() {
		return g.t, nil
	}

	if g.src == nil {
		creds, err := google.FindDefaultCredentials(g.ctx, g.scopes...)
		if err != nil {
			return nil, fmt.Errorf("auth: finding default credentials: %w", err)
		}
		g.src = creds.TokenSource
	}

	tok, err := g.src.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: fetching token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("auth: access token is empty")
	}

	g.t = &Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
		Expiry:      tok.Expiry,
	}
	return g.t, nil
}
