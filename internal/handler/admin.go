// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/visitrack/internal/tracking"
)

// VisitorDashboard answers the visitor listing and detail queries.
type VisitorDashboard interface {
	List(ctx context.Context, p tracking.DashboardParams) (tracking.DashboardPage, error)
	Detail(ctx context.Context, visitorID, orderBy, order string) (tracking.VisitorDetail, error)
}

// LiveVisitors lists currently active visitors.
type LiveVisitors interface {
	Active(ctx context.Context) ([]tracking.LiveVisitor, error)
}

// AdminHandler serves the admin JSON API.
type AdminHandler struct {
	dashboard VisitorDashboard
	live      LiveVisitors
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(dashboard VisitorDashboard, live LiveVisitors, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{dashboard: dashboard, live: live, logger: logger}
}

// Visitors handles GET /admin/api/visitors.
func (h *AdminHandler) Visitors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.dashboard.List(r.Context(), tracking.DashboardParams{
		Page:    parsePage(q.Get("page")),
		Search:  q.Get("search_user"),
		OrderBy: q.Get("orderby"),
		Order:   q.Get("order"),
	})
	if err != nil {
		h.logger.Error("listing visitors failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load visitors.")
		return
	}

	// Links carry the normalized sort, never the raw request value.
	linkParams := maps.Clone(q)
	linkParams.Set("orderby", page.Sort.Column)
	linkParams.Set("order", page.Sort.Order)

	writeJSONSuccess(w, map[string]any{
		"visitors":    page.Visitors,
		"total":       page.Total,
		"page":        page.Page,
		"per_page":    page.PerPage,
		"total_pages": page.TotalPages,
		"search":      page.Search,
		"sort":        page.Sort,
		"sort_links":  tracking.SortLinks(page.Sort, tracking.DashboardSortColumns),
		"pagination":  BuildPagination(page.Page, page.Total, page.PerPage, r.URL.Path, linkParams),
	})
}

// Visitor handles GET /admin/api/visitors/{id}.
func (h *AdminHandler) Visitor(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "id")
	q := r.URL.Query()

	detail, err := h.dashboard.Detail(r.Context(), visitorID, q.Get("session_orderby"), q.Get("session_order"))
	switch {
	case errors.Is(err, tracking.ErrMissingVisitor):
		writeJSONError(w, http.StatusBadRequest, "Visitor ID is required.")
		return
	case errors.Is(err, tracking.ErrSessionNotFound):
		writeJSONError(w, http.StatusNotFound, "User not found.")
		return
	case err != nil:
		h.logger.Error("loading visitor failed", "error", err, "visitor_id", visitorID)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load visitor.")
		return
	}

	writeJSONSuccess(w, map[string]any{
		"visitor":    detail,
		"sort_links": tracking.SortLinks(detail.Sort, tracking.DetailSortColumns),
	})
}

// Live handles GET /admin/api/live.
func (h *AdminHandler) Live(w http.ResponseWriter, r *http.Request) {
	visitors, err := h.live.Active(r.Context())
	if err != nil {
		h.logger.Error("listing live visitors failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load live visitors.")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONSuccess(w, map[string]any{
		"visitors": visitors,
		"count":    len(visitors),
	})
}
