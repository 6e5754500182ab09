// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"
	"net/url"
)

// redirectWithMessage redirects to target carrying message in the query.
// Uses http.StatusSeeOther (303) for POST redirects.
func redirectWithMessage(w http.ResponseWriter, r *http.Request, target, message string) {
	redirectWithParam(w, r, target, "message", message)
}

// redirectWithError redirects to target carrying an error in the query.
func redirectWithError(w http.ResponseWriter, r *http.Request, target, message string) {
	redirectWithParam(w, r, target, "error", message)
}

func redirectWithParam(w http.ResponseWriter, r *http.Request, target, key, value string) {
	q := url.Values{}
	q.Set(key, value)
	http.Redirect(w, r, target+"?"+q.Encode(), http.StatusSeeOther)
}

// parseFormOrRedirect parses the request form and redirects with an error message on failure.
// Returns true if parsing succeeded, false if it failed (and redirect was performed).
func parseFormOrRedirect(w http.ResponseWriter, r *http.Request, redirectURL string) bool {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, redirectURL, "Invalid form data.")
		return false
	}
	return true
}

// logAndHTTPError logs an error and writes an HTTP error response.
func logAndHTTPError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int, logMsg string, args ...any) {
	logger.Error(logMsg, args...)
	http.Error(w, message, statusCode)
}

// logAndInternalError logs an error and writes a 500 Internal Server Error response.
func logAndInternalError(w http.ResponseWriter, logger *slog.Logger, logMsg string, args ...any) {
	logAndHTTPError(w, logger, "Internal Server Error", http.StatusInternalServerError, logMsg, args...)
}
