// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/visitrack/internal/store"
)

func pv(page, ts string) store.PageVisit {
	return store.PageVisit{Page: page, Timestamp: ts}
}

func TestTimeSpent(t *testing.T) {
	tests := []struct {
		name  string
		pages []store.PageVisit
		want  []int64
	}{
		{
			name:  "empty",
			pages: nil,
			want:  []int64{},
		},
		{
			name:  "single entry",
			pages: []store.PageVisit{pv("/", "2026-03-14 09:00:00")},
			want:  []int64{0},
		},
		{
			name: "gaps to next entry",
			pages: []store.PageVisit{
				pv("/", "2026-03-14 09:00:00"),
				pv("/about", "2026-03-14 09:00:45"),
				pv("/contact", "2026-03-14 09:02:00"),
			},
			want: []int64{45, 75, 0},
		},
		{
			name: "out of order clamps to zero",
			pages: []store.PageVisit{
				pv("/", "2026-03-14 09:05:00"),
				pv("/about", "2026-03-14 09:00:00"),
			},
			want: []int64{0, 0},
		},
		{
			name: "unparsable timestamp",
			pages: []store.PageVisit{
				pv("/", "yesterday"),
				pv("/about", "2026-03-14 09:00:00"),
				pv("/contact", "2026-03-14 09:00:10"),
			},
			want: []int64{0, 10, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeSpent(tt.pages, time.UTC))
		})
	}
}

func TestBuildActivity_FiltersAfterComputingGaps(t *testing.T) {
	sessions := []store.VisitorSession{{
		PagesViewed: []store.PageVisit{
			pv("/", "2026-03-14 09:00:00"),
			pv("/static/app.css", "2026-03-14 09:00:02"),
			pv("/pricing", "2026-03-14 09:01:00"),
		},
	}}

	activity := BuildActivity(sessions, NewAssetFilter(DefaultStaticSegment), time.UTC)
	require.Len(t, activity, 2)

	// The gap to the filtered asset is kept, not merged into the next page.
	assert.Equal(t, Activity{Number: 1, Page: "/", Timestamp: "2026-03-14 09:00:00", TimeSpent: 2}, activity[0])
	assert.Equal(t, Activity{Number: 2, Page: "/pricing", Timestamp: "2026-03-14 09:01:00", TimeSpent: 0}, activity[1])
}

func TestBuildActivity_NumbersAcrossSessions(t *testing.T) {
	sessions := []store.VisitorSession{
		{PagesViewed: []store.PageVisit{
			pv("/a", "2026-03-14 09:00:00"),
			pv("/b", "2026-03-14 09:00:05"),
		}},
		{PagesViewed: nil},
		{PagesViewed: []store.PageVisit{
			pv("/logo.png", "2026-03-15 10:00:00"),
			pv("/c", "2026-03-15 10:00:07"),
		}},
	}

	activity := BuildActivity(sessions, NewAssetFilter(DefaultStaticSegment), time.UTC)
	require.Len(t, activity, 3)
	for i, a := range activity {
		assert.Equal(t, i+1, a.Number)
	}
	assert.EqualValues(t, 5, activity[0].TimeSpent)
	assert.EqualValues(t, 0, activity[1].TimeSpent)
	assert.Equal(t, "/c", activity[2].Page)
}

func TestBuildActivity_Empty(t *testing.T) {
	activity := BuildActivity(nil, NewAssetFilter(DefaultStaticSegment), time.UTC)
	assert.NotNil(t, activity)
	assert.Empty(t, activity)
}
