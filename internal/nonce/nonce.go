// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package nonce issues per-action anti-forgery tokens.
//
// Signer issues stateless tokens for the public tracking endpoints: an
// HMAC over the action, the subject and a time tick. A token stays valid
// for the current and the previous tick. SessionTokens issues random
// tokens stored in the admin session, one per action.
package nonce

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// DefaultTick is half the lifetime of a signed token.
const DefaultTick = 12 * time.Hour

// Signer creates and checks HMAC tokens.
type Signer struct {
	key  []byte
	tick time.Duration
	now  func() time.Time
}

// NewSigner returns a Signer keyed with secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{key: secret, tick: DefaultTick, now: time.Now}
}

// Create returns the token for action and subject in the current tick.
func (s *Signer) Create(action, subject string) string {
	return s.sign(action, subject, s.currentTick())
}

// Verify reports whether token was created for action and subject within
// the current or the previous tick.
func (s *Signer) Verify(action, subject, token string) bool {
	if token == "" {
		return false
	}
	tick := s.currentTick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(s.sign(action, subject, t))) {
			return true
		}
	}
	return false
}

func (s *Signer) currentTick() int64 {
	return s.now().UnixNano() / int64(s.tick)
}

func (s *Signer) sign(action, subject string, tick int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(action))
	mac.Write([]byte{0})
	mac.Write([]byte(subject))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	sum := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:18])
}

const sessionKeyPrefix = "nonce:"

// SessionTokens keeps one random token per action in the admin session.
type SessionTokens struct {
	sm *scs.SessionManager
}

// NewSessionTokens returns SessionTokens stored in sm.
func NewSessionTokens(sm *scs.SessionManager) *SessionTokens {
	return &SessionTokens{sm: sm}
}

// Token returns the session's token for action, creating it on first use.
func (t *SessionTokens) Token(ctx context.Context, action string) string {
	key := sessionKeyPrefix + action
	if tok := t.sm.GetString(ctx, key); tok != "" {
		return tok
	}
	tok := uuid.NewString()
	t.sm.Put(ctx, key, tok)
	return tok
}

// Verify reports whether token matches the session's token for action.
func (t *SessionTokens) Verify(ctx context.Context, action, token string) bool {
	want := t.sm.GetString(ctx, sessionKeyPrefix+action)
	if want == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
}

// Clear drops every action token, e.g. on logout.
func (t *SessionTokens) Clear(ctx context.Context) {
	for _, key := range t.sm.Keys(ctx) {
		if strings.HasPrefix(key, sessionKeyPrefix) {
			t.sm.Remove(ctx, key)
		}
	}
}
