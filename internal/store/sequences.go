// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// maxSequenceAttempts bounds retries when two first allocations for a new
// scope race on the insert.
const maxSequenceAttempts = 3

// SequenceStore allocates visitor sequence numbers from the
// visitor_sequences table.
type SequenceStore struct {
	db *sql.DB
}

// NewSequenceStore returns a SequenceStore backed by db.
func NewSequenceStore(db *sql.DB) *SequenceStore {
	return &SequenceStore{db: db}
}

// Next returns the next value of scope. The counter first catches up to
// floor, so a fresh or reset scope never hands out a number at or below
// floor.
func (s *SequenceStore) Next(ctx context.Context, scope string, floor int64) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < maxSequenceAttempts; attempt++ {
		value, err := s.next(ctx, scope, floor)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}
	return 0, fmt.Errorf("allocating %s sequence: %w", scope, lastErr)
}

func (s *SequenceStore) next(ctx context.Context, scope string, floor int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE visitor_sequences
		SET value = CASE WHEN value < ? THEN ? ELSE value END + 1
		WHERE scope = ?`, floor, floor, scope)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO visitor_sequences (scope, value) VALUES (?, ?)`, scope, floor+1); err != nil {
			return 0, err
		}
	}

	var value int64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM visitor_sequences WHERE scope = ?`, scope).Scan(&value); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return value, nil
}

// Reset drops every sequence so allocation restarts from the row counts.
func (s *SequenceStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM visitor_sequences`); err != nil {
		return fmt.Errorf("resetting sequences: %w", err)
	}
	return nil
}
