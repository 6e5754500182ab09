// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/olegiv/visitrack/internal/nonce"
	"github.com/olegiv/visitrack/internal/store"
	"github.com/olegiv/visitrack/internal/tracking"
)

// auditLimit is the number of audit rows shown on the data page.
const auditLimit = 20

// RetentionManager runs the bulk retention operations.
type RetentionManager interface {
	PreviewRange(ctx context.Context, start, end string) (tracking.RetentionReport, error)
	DeleteRange(ctx context.Context, start, end string) (tracking.RetentionReport, error)
	DeleteOlderThan(ctx context.Context, days int) (tracking.RetentionReport, error)
	DeleteVisitor(ctx context.Context, visitorID string) (tracking.RetentionReport, error)
	Purge(ctx context.Context) (tracking.RetentionReport, error)
}

// AuditLister lists audit log rows.
type AuditLister interface {
	ListAuditEntries(ctx context.Context, category string, limit int) ([]store.AuditEntry, error)
}

// DataHandler serves the data management page and its retention actions.
type DataHandler struct {
	retention     RetentionManager
	audit         AuditLister
	tokens        *nonce.SessionTokens
	pages         *Pages
	retentionDays int
	logger        *slog.Logger
}

// NewDataHandler creates a new DataHandler. retentionDays pre-fills the
// age form; 0 leaves it empty.
func NewDataHandler(retention RetentionManager, audit AuditLister, tokens *nonce.SessionTokens, pages *Pages, retentionDays int, logger *slog.Logger) *DataHandler {
	return &DataHandler{
		retention:     retention,
		audit:         audit,
		tokens:        tokens,
		pages:         pages,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

type dataPage struct {
	Title         string
	Message       string
	Error         string
	Nonces        map[string]string
	StartDate     string
	EndDate       string
	RetentionDays string
	Audit         []store.AuditEntry
}

// Page handles GET /admin/data.
func (h *DataHandler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	data := dataPage{
		Title:     "Data management",
		Message:   q.Get("message"),
		Error:     q.Get("error"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Nonces: map[string]string{
			ActionDeleteOld:   h.tokens.Token(ctx, ActionDeleteOld),
			ActionDeleteUser:  h.tokens.Token(ctx, ActionDeleteUser),
			ActionDeleteAll:   h.tokens.Token(ctx, ActionDeleteAll),
			ActionDeleteRange: h.tokens.Token(ctx, ActionDeleteRange),
		},
	}
	if h.retentionDays > 0 {
		data.RetentionDays = strconv.Itoa(h.retentionDays)
	}

	entries, err := h.audit.ListAuditEntries(ctx, "retention", auditLimit)
	if err != nil {
		h.logger.Error("listing audit entries failed", "error", err)
	}
	data.Audit = entries

	h.pages.render(w, h.logger, "data.html", data)
}

// DeleteOld handles POST /admin/data/delete-old.
func (h *DataHandler) DeleteOld(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ActionDeleteOld) {
		return
	}

	days, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("days")))
	if err != nil {
		redirectWithError(w, r, redirectAdminData, "Please enter a valid number of days.")
		return
	}

	report, err := h.retention.DeleteOlderThan(r.Context(), days)
	h.finish(w, r, report, err)
}

// DeleteUser handles POST /admin/data/delete-user.
func (h *DataHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ActionDeleteUser) {
		return
	}

	report, err := h.retention.DeleteVisitor(r.Context(), r.PostFormValue("visitor_id"))
	h.finish(w, r, report, err)
}

// DeleteAll handles POST /admin/data/delete-all.
func (h *DataHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ActionDeleteAll) {
		return
	}
	if r.PostFormValue("confirm") != "yes" {
		redirectWithError(w, r, redirectAdminData, "Please confirm that all data should be deleted.")
		return
	}

	report, err := h.retention.Purge(r.Context())
	h.finish(w, r, report, err)
}

// DeleteRange handles POST /admin/data/delete-range. mode=preview only
// counts; anything else deletes.
func (h *DataHandler) DeleteRange(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, ActionDeleteRange) {
		return
	}

	start, end := r.PostFormValue("start_date"), r.PostFormValue("end_date")

	var (
		report tracking.RetentionReport
		err    error
	)
	if r.PostFormValue("mode") == "preview" {
		report, err = h.retention.PreviewRange(r.Context(), start, end)
	} else {
		report, err = h.retention.DeleteRange(r.Context(), start, end)
	}
	h.finish(w, r, report, err)
}

// authorize parses the form and checks the action's nonce. A bad nonce is
// rejected outright before any data is touched.
func (h *DataHandler) authorize(w http.ResponseWriter, r *http.Request, action string) bool {
	if !parseFormOrRedirect(w, r, redirectAdminData) {
		return false
	}
	if !h.tokens.Verify(r.Context(), action, r.PostFormValue("nonce")) {
		h.logger.Warn("invalid retention nonce", "category", "auth", "action", action)
		http.Error(w, "Security check failed. Reload the page and try again.", http.StatusForbidden)
		return false
	}
	return true
}

// finish redirects back to the data page with the outcome of report.
func (h *DataHandler) finish(w http.ResponseWriter, r *http.Request, report tracking.RetentionReport, err error) {
	if err != nil {
		redirectWithError(w, r, redirectAdminData, rejectionMessage(err))
		return
	}
	if report.Err() != nil {
		redirectWithError(w, r, redirectAdminData, report.FailureMessage())
		return
	}
	redirectWithMessage(w, r, redirectAdminData, report.Message())
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, tracking.ErrMissingDates):
		return "Please select both start and end dates."
	case errors.Is(err, tracking.ErrInvalidDate):
		return "Please select a valid date range."
	case errors.Is(err, tracking.ErrInvalidDays):
		return "Please enter a valid number of days."
	case errors.Is(err, tracking.ErrMissingVisitor):
		return "Please enter a visitor ID."
	default:
		return "The operation could not be completed."
	}
}
