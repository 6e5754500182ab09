// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"strings"
	"time"

	"github.com/olegiv/visitrack/internal/store"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DefaultSortColumn is used whenever a requested column is not allowed.
const DefaultSortColumn = "last_active"

// detailEventLimit caps the events listed on a visitor's detail view.
const detailEventLimit = 100

// DashboardSortColumns is the allow-list of the visitor listing.
var DashboardSortColumns = map[string]bool{
	"visitor_id":       true,
	"ip_address":       true,
	"browser":          true,
	"device_type":      true,
	"referrer":         true,
	"last_active":      true,
	"form_submissions": true,
}

// DetailSortColumns is the allow-list of a visitor's session list.
var DetailSortColumns = map[string]bool{
	"ip_address":       true,
	"browser":          true,
	"device_type":      true,
	"referrer":         true,
	"last_active":      true,
	"form_submissions": true,
}

// Sort is a validated sort column and direction.
type Sort struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// Desc reports whether the sort is descending.
func (s Sort) Desc() bool {
	return s.Order == OrderDesc
}

// NormalizeSort validates a requested sort. Columns outside allowed fall
// back to DefaultSortColumn; anything but "asc" means descending.
func NormalizeSort(column, order string, allowed map[string]bool) Sort {
	s := Sort{Column: DefaultSortColumn, Order: OrderDesc}
	if allowed[column] {
		s.Column = column
	}
	if strings.EqualFold(strings.TrimSpace(order), OrderAsc) {
		s.Order = OrderAsc
	}
	return s
}

// SortLinks returns the direction each allowed column's header link should
// request: the active column toggles, others start ascending.
func SortLinks(current Sort, allowed map[string]bool) map[string]string {
	links := make(map[string]string, len(allowed))
	for column := range allowed {
		next := OrderAsc
		if column == current.Column && current.Order == OrderAsc {
			next = OrderDesc
		}
		links[column] = next
	}
	return links
}

// DashboardParams selects a dashboard page.
type DashboardParams struct {
	Page    int
	Search  string
	OrderBy string
	Order   string
}

// VisitorSummary is one dashboard row.
type VisitorSummary struct {
	VisitorID       string    `json:"visitor_id"`
	IPAddress       string    `json:"ip_address"`
	Browser         string    `json:"browser"`
	OS              string    `json:"os"`
	DeviceType      string    `json:"device_type"`
	Referrer        string    `json:"referrer"`
	CountryCode     string    `json:"country_code"`
	SessionStart    time.Time `json:"session_start"`
	LastActive      time.Time `json:"last_active"`
	PageCount       int       `json:"page_count"`
	FormSubmissions int64     `json:"form_submissions"`
}

// DashboardPage is one page of the visitor listing.
type DashboardPage struct {
	Visitors   []VisitorSummary `json:"visitors"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	Search     string           `json:"search"`
	Sort       Sort             `json:"sort"`
}

// VisitorDetail is everything recorded for one visitor.
type VisitorDetail struct {
	VisitorID string                 `json:"visitor_id"`
	Sessions  []store.VisitorSession `json:"sessions"`
	Activity  []Activity             `json:"activity"`
	Events    []store.TrackedEvent   `json:"events"`
	Sort      Sort                   `json:"sort"`
}

// Dashboard answers the admin listing and detail queries.
type Dashboard struct {
	sessions SessionStore
	events   EventStore
	filter   AssetFilter
	loc      *time.Location
}

// NewDashboard creates a Dashboard. Timestamps in page logs are read in loc.
func NewDashboard(sessions SessionStore, events EventStore, filter AssetFilter, loc *time.Location) *Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	return &Dashboard{sessions: sessions, events: events, filter: filter, loc: loc}
}

// List returns one page of distinct visitors. Pages past the end come back
// empty rather than failing.
func (d *Dashboard) List(ctx context.Context, p DashboardParams) (DashboardPage, error) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	search := strings.TrimSpace(p.Search)

	result := DashboardPage{
		Visitors: []VisitorSummary{},
		Page:     page,
		PerPage:  PageSize,
		Search:   search,
		Sort:     NormalizeSort(p.OrderBy, p.Order, DashboardSortColumns),
	}

	total, err := d.sessions.CountVisitors(ctx, search)
	if err != nil {
		return DashboardPage{}, err
	}
	result.Total = total
	result.TotalPages = int((total + PageSize - 1) / PageSize)

	offset := (page - 1) * PageSize
	if int64(offset) >= total {
		return result, nil
	}

	rows, err := d.sessions.ListVisitors(ctx, store.ListVisitorsParams{
		Search:     search,
		SortColumn: result.Sort.Column,
		Descending: result.Sort.Desc(),
		Limit:      PageSize,
		Offset:     offset,
	})
	if err != nil {
		return DashboardPage{}, err
	}

	for _, s := range rows {
		result.Visitors = append(result.Visitors, VisitorSummary{
			VisitorID:       s.VisitorID,
			IPAddress:       s.IPAddress,
			Browser:         s.Browser,
			OS:              s.OS,
			DeviceType:      s.DeviceType,
			Referrer:        s.Referrer,
			CountryCode:     s.CountryCode,
			SessionStart:    s.SessionStart,
			LastActive:      s.LastActive,
			PageCount:       d.countPages(s.PagesViewed),
			FormSubmissions: s.FormSubmissions,
		})
	}
	return result, nil
}

func (d *Dashboard) countPages(pages []store.PageVisit) int {
	n := 0
	for _, p := range pages {
		if !d.filter.Excluded(p.Page) {
			n++
		}
	}
	return n
}

// Detail returns the sessions, page activity and events of one visitor,
// or ErrSessionNotFound.
func (d *Dashboard) Detail(ctx context.Context, visitorID, orderBy, order string) (VisitorDetail, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return VisitorDetail{}, ErrMissingVisitor
	}

	sort := NormalizeSort(orderBy, order, DetailSortColumns)
	sessions, err := d.sessions.ListVisitorSessions(ctx, visitorID, sort.Column, sort.Desc())
	if err != nil {
		return VisitorDetail{}, err
	}
	if len(sessions) == 0 {
		return VisitorDetail{}, ErrSessionNotFound
	}

	events, err := d.events.ListVisitorEvents(ctx, visitorID, detailEventLimit)
	if err != nil {
		return VisitorDetail{}, err
	}
	if events == nil {
		events = []store.TrackedEvent{}
	}

	return VisitorDetail{
		VisitorID: visitorID,
		Sessions:  sessions,
		Activity:  BuildActivity(sessions, d.filter, d.loc),
		Events:    events,
		Sort:      sort,
	}, nil
}
