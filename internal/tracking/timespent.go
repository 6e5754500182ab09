// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"time"

	"github.com/olegiv/visitrack/internal/store"
)

// Activity is one numbered row of a visitor's page activity.
type Activity struct {
	Number    int    `json:"number"`
	Page      string `json:"page"`
	Timestamp string `json:"timestamp"`
	TimeSpent int64  `json:"time_spent"`
}

// TimeSpent returns the dwell time in whole seconds of every entry of
// pages: the gap to the next entry, or 0 for the last one. Gaps are taken
// between raw consecutive entries, so callers must filter afterwards.
// Out-of-order or unparsable timestamps yield 0.
func TimeSpent(pages []store.PageVisit, loc *time.Location) []int64 {
	spent := make([]int64, len(pages))
	for i := 0; i+1 < len(pages); i++ {
		cur, err := store.ParseTime(pages[i].Timestamp, loc)
		if err != nil {
			continue
		}
		next, err := store.ParseTime(pages[i+1].Timestamp, loc)
		if err != nil {
			continue
		}
		if d := int64(next.Sub(cur) / time.Second); d > 0 {
			spent[i] = d
		}
	}
	return spent
}

// BuildActivity lists the non-asset page visits of sessions, numbered from
// 1 contiguously across all sessions in the given order.
func BuildActivity(sessions []store.VisitorSession, filter AssetFilter, loc *time.Location) []Activity {
	activity := []Activity{}
	n := 0
	for _, s := range sessions {
		spent := TimeSpent(s.PagesViewed, loc)
		for i, p := range s.PagesViewed {
			if filter.Excluded(p.Page) {
				continue
			}
			n++
			activity = append(activity, Activity{
				Number:    n,
				Page:      p.Page,
				Timestamp: p.Timestamp,
				TimeSpent: spent[i],
			})
		}
	}
	return activity
}
