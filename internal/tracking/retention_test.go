// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/visitrack/internal/testutil"
)

// seedHistory creates two visitors with events on 2026-03-10 and one on
// 2026-03-14.
func seedHistory(t *testing.T, e *env) (old1, old2, recent string) {
	t.Helper()
	ctx := context.Background()

	e.clock.Set(testutil.MustTime("2026-03-10 08:00:00"))
	old1 = e.newVisitor(t)
	e.visit(t, old1, "/")
	old2 = e.newVisitor(t)
	_, err := e.events.Record(ctx, EventInput{VisitorID: old1, Event: "a"})
	require.NoError(t, err)
	_, err = e.events.Record(ctx, EventInput{VisitorID: old2, Event: "b"})
	require.NoError(t, err)

	e.clock.Set(testutil.MustTime("2026-03-14 23:59:59"))
	recent = e.newVisitor(t)
	_, err = e.events.Record(ctx, EventInput{VisitorID: recent, Event: "c"})
	require.NoError(t, err)

	e.clock.Set(testutil.MustTime("2026-03-15 12:00:00"))
	return old1, old2, recent
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2026-03-01", " 2026-03-02 ", time.UTC)
	require.NoError(t, err)
	assert.True(t, from.Equal(testutil.MustTime("2026-03-01 00:00:00")), from)
	assert.True(t, to.Equal(testutil.MustTime("2026-03-02 23:59:59")), to)

	_, _, err = ParseDateRange("", "2026-03-02", time.UTC)
	assert.ErrorIs(t, err, ErrMissingDates)
	_, _, err = ParseDateRange("2026-03-01", "", time.UTC)
	assert.ErrorIs(t, err, ErrMissingDates)
	_, _, err = ParseDateRange("03/01/2026", "2026-03-02", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, _, err = ParseDateRange("2026-03-01", "2026-02-30", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, _, err = ParseDateRange("2026-03-02", "2026-03-01", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestRetention_PreviewThenDeleteRange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _, recent := seedHistory(t, e)

	preview, err := e.retention.PreviewRange(ctx, "2026-03-10", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, StatePreviewReported, preview.State)
	assert.True(t, preview.Preview)
	assert.EqualValues(t, 2, preview.Sessions)
	assert.EqualValues(t, 2, preview.Events)
	assert.Equal(t,
		"Preview: 2 records found in User Tracking and 2 records found in Events for the selected date range.",
		preview.Message())

	// Preview deletes nothing.
	n, err := e.q.CountSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	deleted, err := e.retention.DeleteRange(ctx, "2026-03-10", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, StateReported, deleted.State)
	assert.Equal(t, preview.Sessions, deleted.Sessions)
	assert.Equal(t, preview.Events, deleted.Events)
	assert.Equal(t,
		"Deleted: 2 records removed from User Tracking and 2 records removed from Events for the selected date range.",
		deleted.Message())

	n, err = e.q.CountSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	exists, err := e.q.SessionExists(ctx, recent)
	require.NoError(t, err)
	assert.True(t, exists)

	events, err := e.q.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, events)
}

func TestRetention_RangeIsInclusiveOfEndDay(t *testing.T) {
	e := newEnv(t)
	seedHistory(t, e)

	report, err := e.retention.PreviewRange(context.Background(), "2026-03-14", "2026-03-14")
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Sessions)
	assert.EqualValues(t, 1, report.Events)
}

func TestRetention_RangeRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	report, err := e.retention.DeleteRange(ctx, "", "")
	assert.ErrorIs(t, err, ErrMissingDates)
	assert.Equal(t, StateRejected, report.State)

	report, err = e.retention.PreviewRange(ctx, "2026-03-15", "2026-03-14")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Equal(t, StateRejected, report.State)
}

func TestRetention_DeleteOlderThan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _, recent := seedHistory(t, e)

	report, err := e.retention.DeleteOlderThan(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.Sessions)
	assert.EqualValues(t, 2, report.Events)
	assert.Equal(t,
		"Deleted: 2 records removed from User Tracking and 2 records removed from Events older than 3 days.",
		report.Message())

	live, err := e.q.ListSessionsActiveSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, recent, live[0].VisitorID)
}

func TestRetention_DeleteOlderThanRejectsBadDays(t *testing.T) {
	e := newEnv(t)
	for _, days := range []int{0, -1} {
		report, err := e.retention.DeleteOlderThan(context.Background(), days)
		assert.ErrorIs(t, err, ErrInvalidDays)
		assert.Equal(t, StateRejected, report.State)
	}
}

func TestRetention_DeleteVisitor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	old1, old2, _ := seedHistory(t, e)

	report, err := e.retention.DeleteVisitor(ctx, old1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Sessions)
	assert.EqualValues(t, 1, report.Events)
	assert.Contains(t, report.Message(), "for visitor "+old1+".")

	exists, err := e.q.SessionExists(ctx, old2)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = e.retention.DeleteVisitor(ctx, " ")
	assert.ErrorIs(t, err, ErrMissingVisitor)
}

func TestRetention_PurgeEmptiesEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedHistory(t, e)

	report, err := e.retention.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, report.Sessions)
	assert.EqualValues(t, 3, report.Events)
	assert.Equal(t,
		"Deleted: 3 records removed from User Tracking and 3 records removed from Events.",
		report.Message())

	live, err := e.live.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	page, err := e.dashboard.List(ctx, DashboardParams{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Visitors)

	// Allocation restarts after a purge.
	id, err := e.assigner.Assign(ctx, "", Client{})
	require.NoError(t, err)
	assert.Equal(t, "Visitor_0001_20260315", id.VisitorID)
}

// failingEvents fails every delete and count.
type failingEvents struct {
	EventStore
}

var errEventsDown = errors.New("events store down")

func (failingEvents) CountEventsBetween(context.Context, time.Time, time.Time) (int64, error) {
	return 0, errEventsDown
}

func (failingEvents) DeleteEventsBetween(context.Context, time.Time, time.Time) (int64, error) {
	return 0, errEventsDown
}

func TestRetention_ReportsStoresIndependently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedHistory(t, e)

	r := NewRetention(e.q, failingEvents{EventStore: e.q}, e.seq, e.clock.Now, testutil.TestLoggerSilent())
	report, err := r.DeleteRange(ctx, "2026-03-10", "2026-03-10")
	require.NoError(t, err)

	assert.Equal(t, StateReported, report.State)
	assert.NoError(t, report.SessionsErr)
	assert.EqualValues(t, 2, report.Sessions)
	assert.ErrorIs(t, report.EventsErr, errEventsDown)
	assert.ErrorIs(t, report.Err(), errEventsDown)
	assert.Equal(t,
		"2 records processed in User Tracking. Failed to process Events.",
		report.FailureMessage())

	// The sessions delete went through.
	n, err := e.q.CountSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRetentionReport_ErrNilOnSuccess(t *testing.T) {
	assert.NoError(t, RetentionReport{}.Err())
}
