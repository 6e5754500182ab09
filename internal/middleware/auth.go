// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for admin authentication,
// request-origin checks, rate limiting and security headers.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
)

// SessionKeyAdmin marks an authenticated admin session.
const SessionKeyAdmin = "admin_authenticated"

// LoginPath is where unauthenticated admin page requests are sent.
const LoginPath = "/admin/login"

// RequireAdmin rejects requests without an authenticated admin session
// before any handler runs. API paths get a JSON 401; pages are redirected
// to the login form.
func RequireAdmin(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sm.GetBool(r.Context(), SessionKeyAdmin) {
				next.ServeHTTP(w, r)
				return
			}

			slog.Debug("unauthenticated admin request", "path", r.URL.Path, "ip", ClientIP(r))

			if strings.HasPrefix(r.URL.Path, "/admin/api/") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Authentication required."})
				return
			}
			if r.Method != http.MethodGet {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		})
	}
}
