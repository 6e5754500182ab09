// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the storage format of every timestamp column.
const TimeLayout = "2006-01-02 15:04:05"

// PageVisit is one entry of a session's pages_viewed log.
type PageVisit struct {
	Page      string `json:"page"`
	Timestamp string `json:"timestamp"`
	TimeSpent int64  `json:"time_spent"`
}

// VisitorSession is the durable per-visitor record.
type VisitorSession struct {
	ID              int64       `json:"id"`
	VisitorID       string      `json:"visitor_id"`
	IPAddress       string      `json:"ip_address"`
	Browser         string      `json:"browser"`
	OS              string      `json:"os"`
	DeviceType      string      `json:"device_type"`
	Referrer        string      `json:"referrer"`
	CountryCode     string      `json:"country_code"`
	UTMSource       string      `json:"utm_source"`
	SessionStart    time.Time   `json:"session_start"`
	LastActive      time.Time   `json:"last_active"`
	PagesViewed     []PageVisit `json:"pages_viewed"`
	FormSubmissions int64       `json:"form_submissions"`
}

// TrackedEvent is one immutable interaction log entry.
type TrackedEvent struct {
	ID        int64     `json:"id"`
	VisitorID string    `json:"visitor_id"`
	Event     string    `json:"event"`
	Page      string    `json:"page"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntry is a persisted WARN+ log record.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Queries runs the visitor tracking statements against a database handle.
type Queries struct {
	db  *sql.DB
	loc *time.Location
}

// New returns Queries bound to db. Timestamps read back from the database
// are interpreted in loc; nil means UTC.
func New(db *sql.DB, loc *time.Location) *Queries {
	if loc == nil {
		loc = time.UTC
	}
	return &Queries{db: db, loc: loc}
}

// Location returns the zone stored timestamps are interpreted in.
func (q *Queries) Location() *time.Location {
	return q.loc
}

// FormatTime renders t in the storage layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime parses a stored timestamp in loc. RFC 3339 values are accepted
// too, since some drivers hand DATETIME columns back in that shape.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(TimeLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t.In(loc), nil
}

// escapeLike escapes LIKE wildcards using '!' as the escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
