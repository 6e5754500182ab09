// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonces(t *testing.T, c *client) (event, form string) {
	t.Helper()
	rec := c.get("/track/nonce")
	resp := assertJSONResponse(t, rec, http.StatusOK, true)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	n, ok := resp["nonce"].(map[string]any)
	require.True(t, ok)
	event, _ = n["event"].(string)
	form, _ = n["form"].(string)
	require.NotEmpty(t, event)
	require.NotEmpty(t, form)
	return event, form
}

func TestTrackNonce_BoundToVisitor(t *testing.T) {
	e := newTestEnv(t)
	c := newClient(t, e.router(t))
	c.setVisitor("Visitor_0001_20260314")

	event, form := nonces(t, c)
	assert.NotEqual(t, event, form)
	assert.True(t, e.signer.Verify(ActionTrackEvent, "Visitor_0001_20260314", event))
	assert.True(t, e.signer.Verify(ActionTrackForm, "Visitor_0001_20260314", form))
	assert.False(t, e.signer.Verify(ActionTrackEvent, "Visitor_0002_20260314", event))
}

func TestTrackEvent_JSON(t *testing.T) {
	e := newTestEnv(t)
	visitor := e.newVisitor(t, "/")
	c := newClient(t, e.router(t))
	c.setVisitor(visitor)
	event, _ := nonces(t, c)

	rec := c.postJSON("/track/event", map[string]string{
		"event":     "signup_click",
		"page":      "/pricing",
		"timestamp": "2026-03-14T08:59:10Z",
		"nonce":     event,
	})
	resp := assertJSONResponse(t, rec, http.StatusOK, true)
	assert.Equal(t, "Event tracked successfully.", resp["message"])

	events, err := e.q.ListVisitorEvents(context.Background(), visitor, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "signup_click", events[0].Event)
	assert.Equal(t, "/pricing", events[0].Page)
	assert.Equal(t, "2026-03-14 08:59:10", events[0].Timestamp.UTC().Format("2006-01-02 15:04:05"))
}

func TestTrackEvent_Form(t *testing.T) {
	e := newTestEnv(t)
	visitor := e.newVisitor(t)
	c := newClient(t, e.router(t))
	c.setVisitor(visitor)
	event, _ := nonces(t, c)

	rec := c.postForm("/track/event", url.Values{
		"page":  {"/docs"},
		"nonce": {event},
	})
	assertJSONResponse(t, rec, http.StatusOK, true)

	events, err := e.q.ListVisitorEvents(context.Background(), visitor, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "click", events[0].Event)
}

func TestTrackEvent_Rejections(t *testing.T) {
	e := newTestEnv(t)
	visitor := e.newVisitor(t)
	c := newClient(t, e.router(t))
	c.setVisitor(visitor)
	event, form := nonces(t, c)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantError  string
	}{
		{"missing nonce", map[string]string{"event": "click"}, http.StatusForbidden, "Invalid security token."},
		{"wrong nonce", map[string]string{"event": "click", "nonce": "bogus"}, http.StatusForbidden, "Invalid security token."},
		{"form nonce", map[string]string{"event": "click", "nonce": form}, http.StatusForbidden, "Invalid security token."},
		{"no event data", map[string]string{"nonce": event}, http.StatusBadRequest, "No event data provided."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := assertJSONResponse(t, c.postJSON("/track/event", tt.body), tt.wantStatus, false)
			assert.Equal(t, tt.wantError, resp["error"])
		})
	}

	n, err := e.q.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTrackEvent_NonceFromOtherVisitorRejected(t *testing.T) {
	e := newTestEnv(t)
	c := newClient(t, e.router(t))
	c.setVisitor(e.newVisitor(t))
	event, _ := nonces(t, c)

	c.setVisitor(e.newVisitor(t))
	rec := c.postJSON("/track/event", map[string]string{"event": "click", "nonce": event})
	assertJSONResponse(t, rec, http.StatusForbidden, false)
}

func TestTrackEvent_InvalidJSON(t *testing.T) {
	e := newTestEnv(t)
	c := newClient(t, e.router(t))

	rec := c.postJSON("/track/event", "not an object")
	assertJSONResponse(t, rec, http.StatusBadRequest, false)
}

func TestTrackForm(t *testing.T) {
	e := newTestEnv(t)
	visitor := e.newVisitor(t, "/contact")
	c := newClient(t, e.router(t))
	c.setVisitor(visitor)
	_, form := nonces(t, c)

	for range 2 {
		rec := c.postForm("/track/form", url.Values{"nonce": {form}})
		assertJSONResponse(t, rec, http.StatusOK, true)
	}

	s, err := e.q.GetSession(context.Background(), visitor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.FormSubmissions)
}

func TestTrackForm_Errors(t *testing.T) {
	e := newTestEnv(t)
	h := e.router(t)

	t.Run("no identity", func(t *testing.T) {
		c := newClient(t, h)
		_, form := nonces(t, c)
		resp := assertJSONResponse(t, c.postJSON("/track/form", map[string]string{"nonce": form}), http.StatusBadRequest, false)
		assert.Equal(t, "No visitor identity.", resp["error"])
	})

	t.Run("unknown visitor", func(t *testing.T) {
		c := newClient(t, h)
		c.setVisitor("Visitor_9999_20260314")
		_, form := nonces(t, c)
		resp := assertJSONResponse(t, c.postJSON("/track/form", map[string]string{"nonce": form}), http.StatusNotFound, false)
		assert.Equal(t, "Visitor not found.", resp["error"])
	})

	t.Run("bad nonce", func(t *testing.T) {
		c := newClient(t, h)
		c.setVisitor(e.newVisitor(t))
		assertJSONResponse(t, c.postForm("/track/form", url.Values{"nonce": {"x"}}), http.StatusForbidden, false)
	})
}

func TestTrackScript(t *testing.T) {
	e := newTestEnv(t)
	c := newClient(t, e.router(t))

	rec := c.get("/track/tracking.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	for _, want := range []string{"/nonce", "/event", "/form", "visitrack-click", "visitrack-form"} {
		assert.Contains(t, body, want)
	}
}
