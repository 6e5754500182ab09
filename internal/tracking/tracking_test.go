// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegiv/visitrack/internal/store"
	"github.com/olegiv/visitrack/internal/testutil"
)

const (
	firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
)

// env wires every tracking component to one migrated database and a
// shared fake clock.
type env struct {
	q         *store.Queries
	seq       *store.SequenceStore
	clock     *testutil.Clock
	assigner  *Assigner
	recorder  *Recorder
	events    *EventRecorder
	live      *LiveQuery
	dashboard *Dashboard
	retention *Retention
}

func newEnv(t *testing.T) *env {
	t.Helper()

	q, db := testutil.TestQueries(t)
	seq := store.NewSequenceStore(db)
	clock := testutil.NewClock(testutil.MustTime("2026-03-14 09:00:00"))
	logger := testutil.TestLoggerSilent()
	filter := NewAssetFilter(DefaultStaticSegment)

	return &env{
		q:         q,
		seq:       seq,
		clock:     clock,
		assigner:  NewAssigner(q, seq, nil, clock.Now, logger),
		recorder:  NewRecorder(q, filter, clock.Now, logger),
		events:    NewEventRecorder(q, clock.Now, logger),
		live:      NewLiveQuery(q, clock.Now),
		dashboard: NewDashboard(q, q, filter, time.UTC),
		retention: NewRetention(q, q, seq, clock.Now, logger),
	}
}

// newVisitor assigns a fresh identity and returns its id.
func (e *env) newVisitor(t *testing.T) string {
	t.Helper()
	id, err := e.assigner.Assign(context.Background(), "", Client{IP: "203.0.113.7", UserAgent: firefoxUA})
	require.NoError(t, err)
	require.True(t, id.Created)
	return id.VisitorID
}

// visit records page for visitorID at the current clock time.
func (e *env) visit(t *testing.T, visitorID, page string) {
	t.Helper()
	_, err := e.recorder.RecordVisit(context.Background(), visitorID, page)
	require.NoError(t, err)
}
