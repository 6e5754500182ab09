// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetentionState is the terminal state of a retention request.
type RetentionState string

const (
	StateRejected        RetentionState = "rejected"
	StatePreviewReported RetentionState = "preview_reported"
	StateReported        RetentionState = "reported"
)

// Retention operations.
const (
	OpDateRange = "date_range"
	OpOlderThan = "older_than"
	OpVisitor   = "visitor"
	OpPurge     = "purge"
)

const (
	dateLayout   = "2006-01-02"
	logCategory  = "retention"
	storeSession = "User Tracking"
	storeEvents  = "Events"
)

// RetentionReport is the outcome of one retention operation. Each store is
// reported independently; one may fail while the other succeeds.
type RetentionReport struct {
	Operation   string         `json:"operation"`
	State       RetentionState `json:"state"`
	Preview     bool           `json:"preview"`
	From        time.Time      `json:"from,omitzero"`
	To          time.Time      `json:"to,omitzero"`
	Days        int            `json:"days,omitempty"`
	VisitorID   string         `json:"visitor_id,omitempty"`
	Sessions    int64          `json:"sessions"`
	Events      int64          `json:"events"`
	SessionsErr error          `json:"-"`
	EventsErr   error          `json:"-"`
}

// Err joins the per-store failures, or returns nil.
func (r RetentionReport) Err() error {
	var errs []error
	if r.SessionsErr != nil {
		errs = append(errs, fmt.Errorf("%s: %w", storeSession, r.SessionsErr))
	}
	if r.EventsErr != nil {
		errs = append(errs, fmt.Errorf("%s: %w", storeEvents, r.EventsErr))
	}
	return errors.Join(errs...)
}

// Message is the operator-facing summary of a successful report.
func (r RetentionReport) Message() string {
	if r.Preview {
		return fmt.Sprintf("Preview: %d records found in User Tracking and %d records found in Events for the selected date range.",
			r.Sessions, r.Events)
	}

	head := fmt.Sprintf("Deleted: %d records removed from User Tracking and %d records removed from Events", r.Sessions, r.Events)
	switch r.Operation {
	case OpDateRange:
		return head + " for the selected date range."
	case OpOlderThan:
		return fmt.Sprintf("%s older than %d days.", head, r.Days)
	case OpVisitor:
		return fmt.Sprintf("%s for visitor %s.", head, r.VisitorID)
	default:
		return head + "."
	}
}

// FailureMessage names each store that failed.
func (r RetentionReport) FailureMessage() string {
	var parts []string
	if r.SessionsErr != nil {
		parts = append(parts, "Failed to process "+storeSession+".")
	} else {
		parts = append(parts, fmt.Sprintf("%d records processed in %s.", r.Sessions, storeSession))
	}
	if r.EventsErr != nil {
		parts = append(parts, "Failed to process "+storeEvents+".")
	} else {
		parts = append(parts, fmt.Sprintf("%d records processed in %s.", r.Events, storeEvents))
	}
	return strings.Join(parts, " ")
}

// Retention runs bulk preview and delete operations over both stores.
// Every operation is a single attempt; nothing is retried or batched.
type Retention struct {
	sessions SessionStore
	events   EventStore
	seq      Sequencer
	now      Clock
	logger   *slog.Logger
}

// NewRetention creates a Retention manager. seq is reset after a purge and
// may be nil.
func NewRetention(sessions SessionStore, events EventStore, seq Sequencer, now Clock, logger *slog.Logger) *Retention {
	return &Retention{sessions: sessions, events: events, seq: seq, now: now, logger: logger}
}

// ParseDateRange turns two YYYY-MM-DD dates into an inclusive
// [start 00:00:00, end 23:59:59] range in loc.
func ParseDateRange(start, end string, loc *time.Location) (time.Time, time.Time, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, ErrMissingDates
	}

	from, err := time.ParseInLocation(dateLayout, start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q", ErrInvalidDate, start)
	}
	to, err := time.ParseInLocation(dateLayout, end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %q", ErrInvalidDate, end)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidDate, end, start)
	}

	from, _ = dayBounds(from)
	_, to = dayBounds(to)
	return from, to, nil
}

// PreviewRange counts the rows a DeleteRange with the same dates would remove.
func (m *Retention) PreviewRange(ctx context.Context, start, end string) (RetentionReport, error) {
	return m.dateRange(ctx, start, end, true)
}

// DeleteRange deletes sessions last active and events recorded within the
// inclusive date range.
func (m *Retention) DeleteRange(ctx context.Context, start, end string) (RetentionReport, error) {
	return m.dateRange(ctx, start, end, false)
}

func (m *Retention) dateRange(ctx context.Context, start, end string, preview bool) (RetentionReport, error) {
	report := RetentionReport{Operation: OpDateRange, Preview: preview}

	from, to, err := ParseDateRange(start, end, m.now().Location())
	if err != nil {
		report.State = StateRejected
		return report, err
	}
	report.From, report.To = from, to

	m.count(ctx, &report, from, to)
	if preview {
		report.State = StatePreviewReported
		m.log(report)
		return report, nil
	}

	m.deleteBetween(ctx, &report, from, to)
	report.State = StateReported
	m.log(report)
	return report, nil
}

// DeleteOlderThan deletes everything last active more than days days ago.
func (m *Retention) DeleteOlderThan(ctx context.Context, days int) (RetentionReport, error) {
	report := RetentionReport{Operation: OpOlderThan, Days: days}
	if days < 1 {
		report.State = StateRejected
		return report, ErrInvalidDays
	}

	now := m.now()
	report.From = time.Unix(0, 0).In(now.Location())
	report.To = now.AddDate(0, 0, -days)

	m.deleteBetween(ctx, &report, report.From, report.To)
	report.State = StateReported
	m.log(report)
	return report, nil
}

// DeleteVisitor deletes the sessions and events of one visitor.
func (m *Retention) DeleteVisitor(ctx context.Context, visitorID string) (RetentionReport, error) {
	visitorID = strings.TrimSpace(visitorID)
	report := RetentionReport{Operation: OpVisitor, VisitorID: visitorID}
	if visitorID == "" {
		report.State = StateRejected
		return report, ErrMissingVisitor
	}

	report.Sessions, report.SessionsErr = m.sessions.DeleteVisitorSessions(ctx, visitorID)
	report.Events, report.EventsErr = m.events.DeleteVisitorEvents(ctx, visitorID)
	report.State = StateReported
	m.log(report)
	return report, nil
}

// Purge deletes every session and event and restarts id allocation.
// Confirmation is the caller's job.
func (m *Retention) Purge(ctx context.Context) (RetentionReport, error) {
	report := RetentionReport{Operation: OpPurge}

	report.Sessions, report.SessionsErr = m.sessions.DeleteAllSessions(ctx)
	report.Events, report.EventsErr = m.events.DeleteAllEvents(ctx)
	if report.SessionsErr == nil && m.seq != nil {
		if err := m.seq.Reset(ctx); err != nil {
			m.logger.Warn("resetting visitor sequences failed", "category", logCategory, "error", err)
		}
	}

	report.State = StateReported
	m.log(report)
	return report, nil
}

func (m *Retention) count(ctx context.Context, report *RetentionReport, from, to time.Time) {
	report.Sessions, report.SessionsErr = m.sessions.CountSessionsActiveBetween(ctx, from, to)
	report.Events, report.EventsErr = m.events.CountEventsBetween(ctx, from, to)
}

// deleteBetween runs one independent delete per store. A failed count does
// not stop the delete; the reported numbers are the rows actually removed.
func (m *Retention) deleteBetween(ctx context.Context, report *RetentionReport, from, to time.Time) {
	report.Sessions, report.SessionsErr = m.sessions.DeleteSessionsActiveBetween(ctx, from, to)
	report.Events, report.EventsErr = m.events.DeleteEventsBetween(ctx, from, to)
}

func (m *Retention) log(r RetentionReport) {
	attrs := []any{
		"category", logCategory,
		"operation", r.Operation,
		"state", string(r.State),
		"sessions", r.Sessions,
		"events", r.Events,
	}
	if !r.From.IsZero() {
		attrs = append(attrs, "from", r.From.Format(time.DateTime), "to", r.To.Format(time.DateTime))
	}
	if r.VisitorID != "" {
		attrs = append(attrs, "visitor_id", r.VisitorID)
	}

	if err := r.Err(); err != nil {
		m.logger.Error("retention operation failed", append(attrs, "error", err)...)
		return
	}
	if r.Preview {
		m.logger.Info("retention preview", attrs...)
		return
	}
	m.logger.Warn("retention delete", attrs...)
}
