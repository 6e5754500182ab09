// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/visitrack/internal/store"
)

// DefaultEventName is recorded when a client sends no event name.
const DefaultEventName = "click"

// clientTimestampLayouts are tried in order on client timestamps.
var clientTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	store.TimeLayout,
	"2006-01-02T15:04:05",
}

// EventInput is an event as sent by a client.
type EventInput struct {
	VisitorID string
	Event     string
	Page      string
	Timestamp string
}

// EventRecorder appends tracked events.
type EventRecorder struct {
	events EventStore
	now    Clock
	logger *slog.Logger
	policy *bluemonday.Policy
}

// NewEventRecorder creates an EventRecorder.
func NewEventRecorder(events EventStore, now Clock, logger *slog.Logger) *EventRecorder {
	return &EventRecorder{
		events: events,
		now:    now,
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}
}

// Record normalizes in and appends it as one event. It never touches the
// visitor's session.
func (r *EventRecorder) Record(ctx context.Context, in EventInput) (store.TrackedEvent, error) {
	now := r.now()

	ts, ok := ParseClientTimestamp(in.Timestamp, now.Location())
	if !ok {
		r.logger.Debug("unparsable event timestamp, using server time", "timestamp", truncate(in.Timestamp, 64))
		ts = now
	}

	event := store.TrackedEvent{
		VisitorID: r.clean(in.VisitorID, 64),
		Event:     r.clean(in.Event, 255),
		Page:      NormalizePage(r.clean(in.Page, 2048)),
		Timestamp: ts.Truncate(time.Second),
	}
	if event.VisitorID == "" {
		event.VisitorID = UnknownVisitor
	}
	if event.Event == "" {
		event.Event = DefaultEventName
	}

	id, err := r.events.InsertEvent(ctx, store.InsertEventParams{
		VisitorID: event.VisitorID,
		Event:     event.Event,
		Page:      event.Page,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return store.TrackedEvent{}, err
	}
	event.ID = id
	return event, nil
}

// clean strips markup from client text and limits its length.
func (r *EventRecorder) clean(s string, max int) string {
	s = html.UnescapeString(r.policy.Sanitize(s))
	return truncate(strings.TrimSpace(s), max)
}

// ParseClientTimestamp parses an ISO-8601 style client timestamp and
// converts it to loc. Values without a zone are read in loc.
func ParseClientTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range clientTimestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// NormalizePage keeps absolute http(s) URLs and site-relative paths and
// drops anything else.
func NormalizePage(page string) string {
	if page == "" {
		return ""
	}
	u, err := url.Parse(page)
	if err != nil {
		return ""
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		if u.Host == "" {
			return ""
		}
		return u.String()
	case u.Scheme == "" && u.Host == "" && strings.HasPrefix(page, "/") && !strings.HasPrefix(page, "//"):
		return u.String()
	default:
		return ""
	}
}
