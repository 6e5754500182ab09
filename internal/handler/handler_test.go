// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/visitrack/internal/auth"
	"github.com/olegiv/visitrack/internal/middleware"
	"github.com/olegiv/visitrack/internal/nonce"
	"github.com/olegiv/visitrack/internal/store"
	"github.com/olegiv/visitrack/internal/testutil"
	"github.com/olegiv/visitrack/internal/tracking"
)

const (
	testPassword = "correct horse battery staple"
	testUA       = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// testEnv wires real tracking components over a migrated SQLite database.
type testEnv struct {
	db        *sql.DB
	q         *store.Queries
	clock     *testutil.Clock
	assigner  *tracking.Assigner
	recorder  *tracking.Recorder
	events    *tracking.EventRecorder
	dashboard *tracking.Dashboard
	live      *tracking.LiveQuery
	retention *tracking.Retention
	signer    *nonce.Signer
	sm        *scs.SessionManager
	tokens    *nonce.SessionTokens
	pages     *Pages
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	q, db := testutil.TestQueries(t)
	seq := store.NewSequenceStore(db)
	clock := testutil.NewClock(testutil.MustTime("2026-03-14 09:00:00"))
	logger := testutil.TestLoggerSilent()
	filter := tracking.NewAssetFilter(tracking.DefaultStaticSegment)

	pages, err := LoadPages()
	require.NoError(t, err)

	sm := scs.New()
	return &testEnv{
		db:        db,
		q:         q,
		clock:     clock,
		assigner:  tracking.NewAssigner(q, seq, nil, clock.Now, logger),
		recorder:  tracking.NewRecorder(q, filter, clock.Now, logger),
		events:    tracking.NewEventRecorder(q, clock.Now, logger),
		dashboard: tracking.NewDashboard(q, q, filter, time.UTC),
		live:      tracking.NewLiveQuery(q, clock.Now),
		retention: tracking.NewRetention(q, q, seq, clock.Now, logger),
		signer:    nonce.NewSigner([]byte("test-secret-key-that-is-32-bytes!")),
		sm:        sm,
		tokens:    nonce.NewSessionTokens(sm),
		pages:     pages,
	}
}

// newVisitor assigns an identity and records pages for it.
func (e *testEnv) newVisitor(t *testing.T, pages ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := e.assigner.Assign(ctx, "", tracking.Client{IP: "203.0.113.7", UserAgent: testUA})
	require.NoError(t, err)
	for _, p := range pages {
		_, err := e.recorder.RecordVisit(ctx, id.VisitorID, p)
		require.NoError(t, err)
	}
	return id.VisitorID
}

// router mounts every route the way the server does, minus the
// origin check and rate limits.
func (e *testEnv) router(t *testing.T) http.Handler {
	t.Helper()

	hash, err := auth.HashArgon2(testPassword)
	require.NoError(t, err)
	admin, err := auth.NewAdmin(hash)
	require.NoError(t, err)

	logger := testutil.TestLoggerSilent()
	r := chi.NewRouter()
	r.Use(e.sm.LoadAndSave)
	RegisterTrackRoutes(r, NewTrackHandler(e.signer, e.events, e.recorder, logger), nil)
	RegisterAdminRoutes(r, AdminRoutes{
		Sessions: e.sm,
		Auth:     NewAuthHandler(admin, e.sm, middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig()), e.tokens, e.pages, logger),
		API:      NewAdminHandler(e.dashboard, e.live, logger),
		Data:     NewDataHandler(e.retention, e.q, e.tokens, e.pages, 0, logger),
	})
	return r
}

// client replays the cookies a browser would keep between requests.
type client struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, h http.Handler) *client {
	return &client{t: t, h: h, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (c *client) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) postJSON(target string, body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	require.NoError(c.t, err)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) setVisitor(visitorID string) {
	c.cookies[tracking.CookieName] = &http.Cookie{Name: tracking.CookieName, Value: visitorID}
}

// login signs the client in as the admin.
func (c *client) login() {
	c.t.Helper()
	rec := c.postForm("/admin/login", url.Values{"password": {testPassword}})
	require.Equal(c.t, http.StatusSeeOther, rec.Code)
	require.Equal(c.t, "/admin/data", rec.Header().Get("Location"))
}

// formNonce reads the nonce of the form posting to action from the data page.
func (c *client) formNonce(action string) string {
	c.t.Helper()
	rec := c.get("/admin/data")
	require.Equal(c.t, http.StatusOK, rec.Code)

	re := regexp.MustCompile(`(?s)action="` + regexp.QuoteMeta(action) + `".*?name="nonce" value="([^"]+)"`)
	m := re.FindStringSubmatch(rec.Body.String())
	require.Len(c.t, m, 2, "no nonce for %s", action)
	return m[1]
}

// redirectParams returns the query of a 303 redirect to target.
func redirectParams(t *testing.T, rec *httptest.ResponseRecorder, target string) url.Values {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, target, u.Path)
	return u.Query()
}

// assertJSONResponse validates common JSON response properties.
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantSuccess bool) map[string]any {
	t.Helper()

	assert.Equal(t, wantStatus, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, wantSuccess, resp["success"])
	return resp
}
