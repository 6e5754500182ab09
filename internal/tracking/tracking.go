// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tracking assigns visitor identities, records page visits, form
// submissions and events, and answers the dashboard, live and retention
// queries over the recorded data.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/olegiv/visitrack/internal/store"
)

const (
	// CookieName is the identity cookie.
	CookieName = "user_tracking_id"
	// CookieMaxAge is the validity of the identity cookie.
	CookieMaxAge = 30 * 24 * time.Hour
	// UnknownVisitor is recorded on events sent without an identity cookie.
	UnknownVisitor = "unknown"
	// LiveWindow is the trailing activity horizon of the live view.
	LiveWindow = 10 * time.Minute
	// PageSize is the number of visitors per dashboard page.
	PageSize = 10

	// unsetToken is the placeholder cookie value meaning "no identity yet".
	unsetToken = "0"
)

var (
	ErrSessionNotFound = errors.New("visitor session not found")
	ErrMissingDates    = errors.New("both start and end dates must be provided")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidDays     = errors.New("days must be at least 1")
	ErrMissingVisitor  = errors.New("visitor id is required")
)

// SessionStore is the persistent store of visitor sessions.
type SessionStore interface {
	GetSession(ctx context.Context, visitorID string) (store.VisitorSession, error)
	SessionExists(ctx context.Context, visitorID string) (bool, error)
	CreateSession(ctx context.Context, arg store.CreateSessionParams) (int64, error)
	UpdateSessionMetadata(ctx context.Context, arg store.UpdateSessionMetadataParams) (int64, error)
	AppendPageVisit(ctx context.Context, visitorID string, visit store.PageVisit, at time.Time) (int, error)
	IncrementFormSubmissions(ctx context.Context, visitorID string, at time.Time) (int64, error)

	CountSessions(ctx context.Context) (int64, error)
	CountSessionsStartedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountVisitors(ctx context.Context, search string) (int64, error)
	ListVisitors(ctx context.Context, arg store.ListVisitorsParams) ([]store.VisitorSession, error)
	ListVisitorSessions(ctx context.Context, visitorID, sortColumn string, desc bool) ([]store.VisitorSession, error)
	ListSessionsActiveSince(ctx context.Context, since time.Time) ([]store.VisitorSession, error)

	CountSessionsActiveBetween(ctx context.Context, from, to time.Time) (int64, error)
	DeleteSessionsActiveBetween(ctx context.Context, from, to time.Time) (int64, error)
	DeleteVisitorSessions(ctx context.Context, visitorID string) (int64, error)
	DeleteAllSessions(ctx context.Context) (int64, error)
}

// EventStore is the append-only store of tracked events.
type EventStore interface {
	InsertEvent(ctx context.Context, arg store.InsertEventParams) (int64, error)
	ListVisitorEvents(ctx context.Context, visitorID string, limit int) ([]store.TrackedEvent, error)

	CountEvents(ctx context.Context) (int64, error)
	CountEventsBetween(ctx context.Context, from, to time.Time) (int64, error)
	DeleteEventsBetween(ctx context.Context, from, to time.Time) (int64, error)
	DeleteVisitorEvents(ctx context.Context, visitorID string) (int64, error)
	DeleteAllEvents(ctx context.Context) (int64, error)
}

// Sequencer hands out visitor sequence numbers. Next never returns a
// value at or below floor and never returns the same value twice for a
// scope until Reset.
type Sequencer interface {
	Next(ctx context.Context, scope string, floor int64) (int64, error)
	Reset(ctx context.Context) error
}

// CountryResolver maps a client IP to an ISO country code, or "".
type CountryResolver interface {
	LookupCountry(ip string) string
}

// Clock returns the current time in the zone timestamps are stored in.
type Clock func() time.Time

// SystemClock returns a Clock reading the wall clock in loc.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// dayBounds returns 00:00:00 and 23:59:59 of t's calendar day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	return start, end
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
