// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/olegiv/visitrack/internal/store"
)

// DefaultStaticSegment is the reserved static-assets path segment.
const DefaultStaticSegment = "/static/"

var staticAssetPattern = regexp.MustCompile(`(?i)\.(css|js|gif|png|jpe?g)(\?.*)?$`)

// AssetFilter decides which pages are static assets rather than page views.
type AssetFilter struct {
	segment string
}

// NewAssetFilter returns a filter excluding paths containing segment.
// An empty segment only excludes by file extension.
func NewAssetFilter(segment string) AssetFilter {
	return AssetFilter{segment: segment}
}

// Excluded reports whether page is a static asset.
func (f AssetFilter) Excluded(page string) bool {
	if f.segment != "" && strings.Contains(page, f.segment) {
		return true
	}
	return staticAssetPattern.MatchString(page)
}

// Recorder appends page visits and counts form submissions.
type Recorder struct {
	sessions SessionStore
	filter   AssetFilter
	now      Clock
	logger   *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(sessions SessionStore, filter AssetFilter, now Clock, logger *slog.Logger) *Recorder {
	return &Recorder{sessions: sessions, filter: filter, now: now, logger: logger}
}

// Filter returns the static-asset filter in use.
func (r *Recorder) Filter() AssetFilter {
	return r.filter
}

// RecordVisit appends page to the visitor's page log. It is a no-op,
// returning false, for an empty visitor or an excluded page.
func (r *Recorder) RecordVisit(ctx context.Context, visitorID, page string) (bool, error) {
	if visitorID == "" || r.filter.Excluded(page) {
		return false, nil
	}

	now := r.now()
	visit := store.PageVisit{
		Page:      truncate(page, 2048),
		Timestamp: store.FormatTime(now),
		TimeSpent: 0,
	}

	n, err := r.sessions.AppendPageVisit(ctx, visitorID, visit, now)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrSessionNotFound
	}
	if err != nil {
		return false, err
	}

	r.logger.Debug("page visit recorded", "visitor_id", visitorID, "page", visit.Page, "pages", n)
	return true, nil
}

// RecordFormSubmission increments the visitor's form submission counter.
func (r *Recorder) RecordFormSubmission(ctx context.Context, visitorID string) error {
	if visitorID == "" {
		return ErrMissingVisitor
	}

	n, err := r.sessions.IncrementFormSubmissions(ctx, visitorID, r.now())
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
