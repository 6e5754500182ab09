// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package nonce

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(now *time.Time) *Signer {
	s := NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	s.now = func() time.Time { return *now }
	return s
}

func TestSigner_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := testSigner(&now)

	tok := s.Create("track_event", "Visitor_0001_20260314")
	assert.NotEmpty(t, tok)
	assert.True(t, s.Verify("track_event", "Visitor_0001_20260314", tok))
}

func TestSigner_ScopedToActionAndSubject(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := testSigner(&now)

	tok := s.Create("track_event", "Visitor_0001_20260314")
	assert.False(t, s.Verify("track_form", "Visitor_0001_20260314", tok))
	assert.False(t, s.Verify("track_event", "Visitor_0002_20260314", tok))
	assert.False(t, s.Verify("track_event", "Visitor_0001_20260314", ""))
	assert.False(t, s.Verify("track_event", "Visitor_0001_20260314", tok+"x"))
}

func TestSigner_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := testSigner(&now)
	tok := s.Create("track_event", "")

	now = now.Add(DefaultTick)
	assert.True(t, s.Verify("track_event", "", tok), "previous tick is still valid")

	now = now.Add(2 * DefaultTick)
	assert.False(t, s.Verify("track_event", "", tok))
}

func TestSigner_DifferentKeys(t *testing.T) {
	a := NewSigner([]byte("key-a"))
	b := NewSigner([]byte("key-b"))
	assert.False(t, b.Verify("x", "", a.Create("x", "")))
}

// withSession runs fn inside a request carrying a loaded scs session.
func withSession(t *testing.T, sm *scs.SessionManager, fn func(r *http.Request)) {
	t.Helper()
	h := sm.LoadAndSave(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		fn(r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSessionTokens(t *testing.T) {
	sm := scs.New()
	tokens := NewSessionTokens(sm)

	withSession(t, sm, func(r *http.Request) {
		ctx := r.Context()

		purge := tokens.Token(ctx, "delete_all")
		require.NotEmpty(t, purge)
		assert.Equal(t, purge, tokens.Token(ctx, "delete_all"), "token is stable within a session")

		other := tokens.Token(ctx, "delete_user")
		assert.NotEqual(t, purge, other)

		assert.True(t, tokens.Verify(ctx, "delete_all", purge))
		assert.False(t, tokens.Verify(ctx, "delete_user", purge))
		assert.False(t, tokens.Verify(ctx, "delete_range", ""))
		assert.False(t, tokens.Verify(ctx, "delete_range", purge), "unissued action")

		sm.Put(ctx, "admin_authenticated", true)
		tokens.Clear(ctx)
		assert.False(t, tokens.Verify(ctx, "delete_all", purge))
		assert.True(t, sm.GetBool(ctx, "admin_authenticated"))
	})
}
