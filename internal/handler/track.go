// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/olegiv/visitrack/internal/nonce"
	"github.com/olegiv/visitrack/internal/store"
	"github.com/olegiv/visitrack/internal/tracking"
)

// EventRecorder records tracked events.
type EventRecorder interface {
	Record(ctx context.Context, in tracking.EventInput) (store.TrackedEvent, error)
}

// FormRecorder counts form submissions.
type FormRecorder interface {
	RecordFormSubmission(ctx context.Context, visitorID string) error
}

// TrackHandler serves the public endpoints called by the tracking script.
type TrackHandler struct {
	signer *nonce.Signer
	events EventRecorder
	forms  FormRecorder
	logger *slog.Logger
}

// NewTrackHandler creates a new TrackHandler.
func NewTrackHandler(signer *nonce.Signer, events EventRecorder, forms FormRecorder, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{signer: signer, events: events, forms: forms, logger: logger}
}

// eventPayload is the body of POST /track/event.
type eventPayload struct {
	Event     string `json:"event"`
	Page      string `json:"page"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func (p eventPayload) empty() bool {
	return p.Event == "" && p.Page == "" && p.Timestamp == ""
}

// visitorCookie returns the identity cookie value, or "".
func visitorCookie(r *http.Request) string {
	c, err := r.Cookie(tracking.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Nonce handles GET /track/nonce. Tokens are bound to the caller's
// identity cookie.
func (h *TrackHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	visitor := visitorCookie(r)
	w.Header().Set("Cache-Control", "no-store")
	writeJSONSuccess(w, map[string]any{
		"nonce": map[string]string{
			"event": h.signer.Create(ActionTrackEvent, visitor),
			"form":  h.signer.Create(ActionTrackForm, visitor),
		},
	})
}

// Event handles POST /track/event with a form or JSON body.
func (h *TrackHandler) Event(w http.ResponseWriter, r *http.Request) {
	var p eventPayload
	if isJSONRequest(r) {
		if err := decodeJSON(w, r, &p); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid form data.")
			return
		}
		p = eventPayload{
			Event:     r.PostFormValue("event"),
			Page:      r.PostFormValue("page"),
			Timestamp: r.PostFormValue("timestamp"),
			Nonce:     r.PostFormValue("nonce"),
		}
	}

	visitor := visitorCookie(r)
	if !h.signer.Verify(ActionTrackEvent, visitor, p.Nonce) {
		h.logger.Warn("invalid tracking nonce", "category", "tracking", "action", ActionTrackEvent, "visitor_id", visitor)
		writeJSONError(w, http.StatusForbidden, "Invalid security token.")
		return
	}
	if p.empty() {
		writeJSONError(w, http.StatusBadRequest, "No event data provided.")
		return
	}

	event, err := h.events.Record(r.Context(), tracking.EventInput{
		VisitorID: visitor,
		Event:     p.Event,
		Page:      p.Page,
		Timestamp: p.Timestamp,
	})
	if err != nil {
		h.logger.Error("recording event failed", "error", err, "visitor_id", visitor)
		writeJSONError(w, http.StatusInternalServerError, "Failed to track event.")
		return
	}

	writeJSONSuccess(w, map[string]any{
		"message": "Event tracked successfully.",
		"event":   event,
	})
}

// Form handles POST /track/form.
func (h *TrackHandler) Form(w http.ResponseWriter, r *http.Request) {
	var token string
	if isJSONRequest(r) {
		var body struct {
			Nonce string `json:"nonce"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
		token = body.Nonce
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid form data.")
			return
		}
		token = r.PostFormValue("nonce")
	}

	visitor := visitorCookie(r)
	if !h.signer.Verify(ActionTrackForm, visitor, token) {
		h.logger.Warn("invalid tracking nonce", "category", "tracking", "action", ActionTrackForm, "visitor_id", visitor)
		writeJSONError(w, http.StatusForbidden, "Invalid security token.")
		return
	}

	err := h.forms.RecordFormSubmission(r.Context(), visitor)
	switch {
	case errors.Is(err, tracking.ErrMissingVisitor):
		writeJSONError(w, http.StatusBadRequest, "No visitor identity.")
	case errors.Is(err, tracking.ErrSessionNotFound):
		writeJSONError(w, http.StatusNotFound, "Visitor not found.")
	case err != nil:
		h.logger.Error("recording form submission failed", "error", err, "visitor_id", visitor)
		writeJSONError(w, http.StatusInternalServerError, "Failed to track form submission.")
	default:
		writeJSONSuccess(w, map[string]any{"message": "Form submission tracked successfully."})
	}
}
