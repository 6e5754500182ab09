// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/visitrack/internal/store"
	"github.com/olegiv/visitrack/internal/testutil"
	"github.com/olegiv/visitrack/internal/tracking"
)

type visitsEnv struct {
	q       *store.Queries
	handler http.Handler
	served  []string
}

func newVisitsEnv(t *testing.T) *visitsEnv {
	t.Helper()

	q, db := testutil.TestQueries(t)
	clock := testutil.NewClock(testutil.MustTime("2026-03-14 09:00:00"))
	logger := testutil.TestLoggerSilent()

	e := &visitsEnv{q: q}
	site := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.served = append(e.served, VisitorID(r.Context()))
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	e.handler = TrackVisits(VisitsConfig{
		Assigner: tracking.NewAssigner(q, store.NewSequenceStore(db), nil, clock.Now, logger),
		Recorder: tracking.NewRecorder(q, tracking.NewAssetFilter(tracking.DefaultStaticSegment), clock.Now, logger),
		Logger:   logger,
	})(site)
	return e
}

func (e *visitsEnv) get(path string, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.7:4242"
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: tracking.CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func identityCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == tracking.CookieName {
			return c
		}
	}
	return nil
}

func TestTrackVisits_FirstVisit(t *testing.T) {
	e := newVisitsEnv(t)

	rec := e.get("/pricing?utm_source=newsletter", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	c := identityCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "Visitor_0001_20260314", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 30*24*60*60, c.MaxAge)
	assert.Equal(t, []string{"Visitor_0001_20260314"}, e.served)

	s, err := e.q.GetSession(context.Background(), c.Value)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", s.IPAddress)
	assert.Equal(t, "newsletter", s.UTMSource)
	require.Len(t, s.PagesViewed, 1)
	assert.Equal(t, "/pricing?utm_source=newsletter", s.PagesViewed[0].Page)
}

func TestTrackVisits_ReturningVisitor(t *testing.T) {
	e := newVisitsEnv(t)

	first := identityCookie(e.get("/", ""))
	require.NotNil(t, first)

	rec := e.get("/about", first.Value)
	renewed := identityCookie(rec)
	require.NotNil(t, renewed, "known visitors get their cookie renewed")
	assert.Equal(t, first.Value, renewed.Value)
	assert.Equal(t, 30*24*60*60, renewed.MaxAge)

	s, err := e.q.GetSession(context.Background(), first.Value)
	require.NoError(t, err)
	require.Len(t, s.PagesViewed, 2)
	assert.Equal(t, "/about", s.PagesViewed[1].Page)

	n, err := e.q.CountSessions(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTrackVisits_ReplacesUnknownCookie(t *testing.T) {
	e := newVisitsEnv(t)

	rec := e.get("/", "Visitor_0099_20200101")
	c := identityCookie(rec)
	require.NotNil(t, c)
	assert.NotEqual(t, "Visitor_0099_20200101", c.Value)
}

func TestTrackVisits_StaticAssetsGetNoIdentity(t *testing.T) {
	e := newVisitsEnv(t)

	for _, path := range []string{"/static/site.css", "/logo.png", "/app.js?v=3"} {
		rec := e.get(path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Nil(t, identityCookie(rec), path)
	}

	n, err := e.q.CountSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	for _, id := range e.served {
		assert.Empty(t, id)
	}

	c := identityCookie(e.get("/", ""))
	require.NotNil(t, c)
	assert.Equal(t, "Visitor_0001_20260314", c.Value)
}

func TestTrackVisits_StaticAssetKeepsKnownVisitorUntouched(t *testing.T) {
	e := newVisitsEnv(t)

	first := identityCookie(e.get("/", ""))
	require.NotNil(t, first)

	rec := e.get("/static/site.css", first.Value)
	assert.Nil(t, identityCookie(rec))

	s, err := e.q.GetSession(context.Background(), first.Value)
	require.NoError(t, err)
	assert.Len(t, s.PagesViewed, 1)
}

func TestTrackVisits_SkipsNon200(t *testing.T) {
	e := newVisitsEnv(t)

	rec := e.get("/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	c := identityCookie(rec)
	require.NotNil(t, c)

	s, err := e.q.GetSession(context.Background(), c.Value)
	require.NoError(t, err)
	assert.Empty(t, s.PagesViewed)
}

func TestTrackVisits_UntrackedRequests(t *testing.T) {
	e := newVisitsEnv(t)

	for _, path := range []string{"/admin/data", "/track/nonce", "/health"} {
		rec := e.get(path, "")
		assert.Nil(t, identityCookie(rec), path)
	}

	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Nil(t, identityCookie(rec))

	n, err := e.q.CountSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	for _, id := range e.served {
		assert.Empty(t, id)
	}
}
