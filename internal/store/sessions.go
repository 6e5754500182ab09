// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const sessionColumns = `id, visitor_id, ip_address, browser, os, device_type, referrer,
	country_code, utm_source, session_start, last_active, pages_viewed, form_submissions`

// SessionSortColumns lists the columns a session listing may be ordered by.
var SessionSortColumns = map[string]bool{
	"visitor_id":       true,
	"ip_address":       true,
	"browser":          true,
	"device_type":      true,
	"referrer":         true,
	"last_active":      true,
	"form_submissions": true,
}

// sessionOrderClause builds an ORDER BY clause from an allow-listed column.
// Unknown columns fall back to last_active.
func sessionOrderClause(column string, desc bool) string {
	if !SessionSortColumns[column] {
		column = "last_active"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return " ORDER BY " + column + " " + dir + ", id " + dir
}

func (q *Queries) scanSession(row rowScanner) (VisitorSession, error) {
	var (
		s                 VisitorSession
		started, lastSeen string
		pages             string
	)
	err := row.Scan(&s.ID, &s.VisitorID, &s.IPAddress, &s.Browser, &s.OS, &s.DeviceType,
		&s.Referrer, &s.CountryCode, &s.UTMSource, &started, &lastSeen, &pages, &s.FormSubmissions)
	if err != nil {
		return VisitorSession{}, err
	}

	if s.SessionStart, err = ParseTime(started, q.loc); err != nil {
		return VisitorSession{}, err
	}
	if s.LastActive, err = ParseTime(lastSeen, q.loc); err != nil {
		return VisitorSession{}, err
	}
	if s.PagesViewed, err = decodePages(pages); err != nil {
		return VisitorSession{}, fmt.Errorf("decoding pages_viewed of %s: %w", s.VisitorID, err)
	}
	return s, nil
}

func (q *Queries) querySessions(ctx context.Context, query string, args ...any) ([]VisitorSession, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []VisitorSession
	for rows.Next() {
		s, err := q.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func decodePages(raw string) ([]PageVisit, error) {
	if raw == "" {
		return []PageVisit{}, nil
	}
	var pages []PageVisit
	if err := json.Unmarshal([]byte(raw), &pages); err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []PageVisit{}
	}
	return pages, nil
}

func encodePages(pages []PageVisit) (string, error) {
	if pages == nil {
		pages = []PageVisit{}
	}
	b, err := json.Marshal(pages)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetSession returns the session of a visitor, or sql.ErrNoRows.
func (q *Queries) GetSession(ctx context.Context, visitorID string) (VisitorSession, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM visitor_sessions WHERE visitor_id = ?`, visitorID)
	return q.scanSession(row)
}

// SessionExists reports whether a session row exists for visitorID.
func (q *Queries) SessionExists(ctx context.Context, visitorID string) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visitor_sessions WHERE visitor_id = ?`, visitorID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateSessionParams holds the values of a new session row.
type CreateSessionParams struct {
	VisitorID   string
	IPAddress   string
	Browser     string
	OS          string
	DeviceType  string
	Referrer    string
	CountryCode string
	UTMSource   string
	StartedAt   time.Time
	PagesViewed []PageVisit
}

// CreateSession inserts a session row and returns its id.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (int64, error) {
	pages, err := encodePages(arg.PagesViewed)
	if err != nil {
		return 0, err
	}
	started := FormatTime(arg.StartedAt)

	res, err := q.db.ExecContext(ctx, `INSERT INTO visitor_sessions
		(visitor_id, ip_address, browser, os, device_type, referrer, country_code, utm_source,
		 session_start, last_active, pages_viewed, form_submissions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		arg.VisitorID, arg.IPAddress, arg.Browser, arg.OS, arg.DeviceType, arg.Referrer,
		arg.CountryCode, arg.UTMSource, started, started, pages)
	if err != nil {
		return 0, fmt.Errorf("inserting session %s: %w", arg.VisitorID, err)
	}
	return res.LastInsertId()
}

// UpdateSessionMetadataParams holds the last-observed request metadata.
type UpdateSessionMetadataParams struct {
	VisitorID   string
	IPAddress   string
	Browser     string
	OS          string
	DeviceType  string
	Referrer    string
	CountryCode string
	SeenAt      time.Time
}

// UpdateSessionMetadata overwrites the request metadata and advances
// last_active. last_active never moves backwards. It returns the number of
// matched rows.
func (q *Queries) UpdateSessionMetadata(ctx context.Context, arg UpdateSessionMetadataParams) (int64, error) {
	seen := FormatTime(arg.SeenAt)
	res, err := q.db.ExecContext(ctx, `UPDATE visitor_sessions SET
		ip_address = ?, browser = ?, os = ?, device_type = ?, referrer = ?, country_code = ?,
		last_active = CASE WHEN last_active < ? THEN ? ELSE last_active END
		WHERE visitor_id = ?`,
		arg.IPAddress, arg.Browser, arg.OS, arg.DeviceType, arg.Referrer, arg.CountryCode,
		seen, seen, arg.VisitorID)
	if err != nil {
		return 0, fmt.Errorf("updating session %s: %w", arg.VisitorID, err)
	}
	return res.RowsAffected()
}

// AppendPageVisit appends visit to the visitor's page log and advances
// last_active in one transaction. The first statement is a write, so the
// row is locked before pages_viewed is read and concurrent appends for the
// same visitor serialize instead of overwriting each other. It returns the
// new log length, or sql.ErrNoRows when the visitor has no session.
func (q *Queries) AppendPageVisit(ctx context.Context, visitorID string, visit PageVisit, at time.Time) (int, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seen := FormatTime(at)
	res, err := tx.ExecContext(ctx, `UPDATE visitor_sessions
		SET last_active = CASE WHEN last_active < ? THEN ? ELSE last_active END
		WHERE visitor_id = ?`, seen, seen, visitorID)
	if err != nil {
		return 0, fmt.Errorf("touching session %s: %w", visitorID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, sql.ErrNoRows
	}

	var raw string
	if err := tx.QueryRowContext(ctx,
		`SELECT pages_viewed FROM visitor_sessions WHERE visitor_id = ?`, visitorID).Scan(&raw); err != nil {
		return 0, err
	}
	pages, err := decodePages(raw)
	if err != nil {
		// Corrupt logs restart empty.
		pages = []PageVisit{}
	}
	pages = append(pages, visit)

	encoded, err := encodePages(pages)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE visitor_sessions SET pages_viewed = ? WHERE visitor_id = ?`, encoded, visitorID); err != nil {
		return 0, fmt.Errorf("saving pages of %s: %w", visitorID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing page visit: %w", err)
	}
	return len(pages), nil
}

// IncrementFormSubmissions adds one to the visitor's form counter in a
// single statement. It returns the number of matched rows.
func (q *Queries) IncrementFormSubmissions(ctx context.Context, visitorID string, at time.Time) (int64, error) {
	seen := FormatTime(at)
	res, err := q.db.ExecContext(ctx, `UPDATE visitor_sessions SET
		form_submissions = form_submissions + 1,
		last_active = CASE WHEN last_active < ? THEN ? ELSE last_active END
		WHERE visitor_id = ?`, seen, seen, visitorID)
	if err != nil {
		return 0, fmt.Errorf("incrementing form submissions of %s: %w", visitorID, err)
	}
	return res.RowsAffected()
}

// CountSessions returns the number of session rows.
func (q *Queries) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visitor_sessions`).Scan(&n)
	return n, err
}

// CountSessionsStartedBetween counts sessions whose session_start lies in [from, to].
func (q *Queries) CountSessionsStartedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visitor_sessions WHERE session_start BETWEEN ? AND ?`,
		FormatTime(from), FormatTime(to)).Scan(&n)
	return n, err
}

// CountVisitors counts distinct visitor ids containing search, case-insensitively.
func (q *Queries) CountVisitors(ctx context.Context, search string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM visitor_sessions
		 WHERE LOWER(visitor_id) LIKE LOWER(?) ESCAPE '!'`,
		"%"+escapeLike(search)+"%").Scan(&n)
	return n, err
}

// ListVisitorsParams selects one dashboard page.
type ListVisitorsParams struct {
	Search     string
	SortColumn string
	Descending bool
	Limit      int
	Offset     int
}

// ListVisitors returns one representative row per distinct visitor id.
func (q *Queries) ListVisitors(ctx context.Context, arg ListVisitorsParams) ([]VisitorSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM visitor_sessions
		WHERE id IN (
			SELECT MIN(id) FROM visitor_sessions
			WHERE LOWER(visitor_id) LIKE LOWER(?) ESCAPE '!'
			GROUP BY visitor_id
		)` + sessionOrderClause(arg.SortColumn, arg.Descending) + ` LIMIT ? OFFSET ?`
	return q.querySessions(ctx, query, "%"+escapeLike(arg.Search)+"%", arg.Limit, arg.Offset)
}

// ListVisitorSessions returns every session row of one visitor.
func (q *Queries) ListVisitorSessions(ctx context.Context, visitorID, sortColumn string, desc bool) ([]VisitorSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM visitor_sessions WHERE visitor_id = ?` +
		sessionOrderClause(sortColumn, desc)
	return q.querySessions(ctx, query, visitorID)
}

// ListSessionsActiveSince returns sessions with last_active >= since, newest first.
func (q *Queries) ListSessionsActiveSince(ctx context.Context, since time.Time) ([]VisitorSession, error) {
	return q.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM visitor_sessions
		 WHERE last_active >= ? ORDER BY last_active DESC, id DESC`, FormatTime(since))
}

// CountSessionsActiveBetween counts sessions whose last_active lies in [from, to].
func (q *Queries) CountSessionsActiveBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visitor_sessions WHERE last_active BETWEEN ? AND ?`,
		FormatTime(from), FormatTime(to)).Scan(&n)
	return n, err
}

// DeleteSessionsActiveBetween deletes sessions whose last_active lies in [from, to].
func (q *Queries) DeleteSessionsActiveBetween(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM visitor_sessions WHERE last_active BETWEEN ? AND ?`,
		FormatTime(from), FormatTime(to))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteVisitorSessions deletes every session row of one visitor.
func (q *Queries) DeleteVisitorSessions(ctx context.Context, visitorID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM visitor_sessions WHERE visitor_id = ?`, visitorID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllSessions deletes every session row.
func (q *Queries) DeleteAllSessions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM visitor_sessions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
