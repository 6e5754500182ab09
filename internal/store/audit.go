// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

// CreateAuditEntryParams holds the values of a new audit log row.
type CreateAuditEntryParams struct {
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

// CreateAuditEntry inserts an audit log row.
func (q *Queries) CreateAuditEntry(ctx context.Context, arg CreateAuditEntryParams) error {
	if arg.Metadata == "" {
		arg.Metadata = "{}"
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO audit_log (level, category, message, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		arg.Level, arg.Category, arg.Message, arg.Metadata, FormatTime(arg.CreatedAt.In(q.loc)))
	return err
}

// ListAuditEntries returns the newest audit rows of a category; an empty
// category lists all of them.
func (q *Queries) ListAuditEntries(ctx context.Context, category string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, level, category, message, metadata, created_at FROM audit_log`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.Metadata, &created); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = ParseTime(created, q.loc); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
