// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"time"

	"github.com/olegiv/visitrack/internal/store"
)

// LiveVisitor is a session active within the live window.
type LiveVisitor struct {
	store.VisitorSession
	CurrentPage string `json:"current_page"`
}

// LiveQuery lists currently active visitors.
type LiveQuery struct {
	sessions SessionStore
	now      Clock
	window   time.Duration
}

// NewLiveQuery creates a LiveQuery over the trailing LiveWindow.
func NewLiveQuery(sessions SessionStore, now Clock) *LiveQuery {
	return &LiveQuery{sessions: sessions, now: now, window: LiveWindow}
}

// Active returns sessions with last_active within the window, most
// recently active first.
func (q *LiveQuery) Active(ctx context.Context) ([]LiveVisitor, error) {
	sessions, err := q.sessions.ListSessionsActiveSince(ctx, q.now().Add(-q.window))
	if err != nil {
		return nil, err
	}

	live := make([]LiveVisitor, 0, len(sessions))
	for _, s := range sessions {
		current := "N/A"
		if n := len(s.PagesViewed); n > 0 {
			current = s.PagesViewed[n-1].Page
		}
		live = append(live, LiveVisitor{VisitorSession: s, CurrentPage: current})
	}
	return live, nil
}
