// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"
)

// InsertEventParams holds the values of a new tracked event.
type InsertEventParams struct {
	VisitorID string
	Event     string
	Page      string
	Timestamp time.Time
}

// InsertEvent appends a tracked event and returns its id.
func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO tracked_events (visitor_id, event, page, timestamp) VALUES (?, ?, ?, ?)`,
		arg.VisitorID, arg.Event, arg.Page, FormatTime(arg.Timestamp))
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}
	return res.LastInsertId()
}

// ListVisitorEvents returns the most recent events of one visitor, newest first.
func (q *Queries) ListVisitorEvents(ctx context.Context, visitorID string, limit int) ([]TrackedEvent, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, visitor_id, event, page, timestamp FROM tracked_events
		 WHERE visitor_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, visitorID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []TrackedEvent
	for rows.Next() {
		var (
			e  TrackedEvent
			ts string
		)
		if err := rows.Scan(&e.ID, &e.VisitorID, &e.Event, &e.Page, &ts); err != nil {
			return nil, err
		}
		if e.Timestamp, err = ParseTime(ts, q.loc); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of tracked events.
func (q *Queries) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracked_events`).Scan(&n)
	return n, err
}

// CountEventsBetween counts events whose timestamp lies in [from, to].
func (q *Queries) CountEventsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_events WHERE timestamp BETWEEN ? AND ?`,
		FormatTime(from), FormatTime(to)).Scan(&n)
	return n, err
}

// DeleteEventsBetween deletes events whose timestamp lies in [from, to].
func (q *Queries) DeleteEventsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM tracked_events WHERE timestamp BETWEEN ? AND ?`,
		FormatTime(from), FormatTime(to))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteVisitorEvents deletes every event of one visitor.
func (q *Queries) DeleteVisitorEvents(ctx context.Context, visitorID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tracked_events WHERE visitor_id = ?`, visitorID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllEvents deletes every tracked event.
func (q *Queries) DeleteAllEvents(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tracked_events`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
