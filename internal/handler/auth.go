// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/visitrack/internal/auth"
	"github.com/olegiv/visitrack/internal/middleware"
	"github.com/olegiv/visitrack/internal/nonce"
)

// AuthHandler handles admin login and logout.
type AuthHandler struct {
	admin           *auth.Admin
	sessionManager  *scs.SessionManager
	loginProtection *middleware.LoginProtection
	tokens          *nonce.SessionTokens
	pages           *Pages
	logger          *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. lp may be nil.
func NewAuthHandler(admin *auth.Admin, sm *scs.SessionManager, lp *middleware.LoginProtection, tokens *nonce.SessionTokens, pages *Pages, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		admin:           admin,
		sessionManager:  sm,
		loginProtection: lp,
		tokens:          tokens,
		pages:           pages,
		logger:          logger,
	}
}

type loginData struct {
	Title   string
	Enabled bool
	Message string
	Error   string
}

// LoginForm renders the login page. An authenticated admin is sent on to
// the data page.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionManager.GetBool(r.Context(), middleware.SessionKeyAdmin) {
		http.Redirect(w, r, redirectAdminData, http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	h.pages.render(w, h.logger, "login.html", loginData{
		Title:   "Sign in",
		Enabled: h.admin.Enabled(),
		Message: q.Get("message"),
		Error:   q.Get("error"),
	})
}

// Login handles the login form submission.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, redirectLogin) {
		return
	}
	if !h.admin.Enabled() {
		redirectWithError(w, r, redirectLogin, "Admin login is disabled.")
		return
	}

	password := r.PostFormValue("password")
	if password == "" {
		redirectWithError(w, r, redirectLogin, "Password is required.")
		return
	}

	clientIP := middleware.ClientIP(r)

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsLocked(clientIP); locked {
			h.logger.Warn("login attempt while locked out", "category", "auth", "ip", clientIP)
			redirectWithError(w, r, redirectLogin,
				fmt.Sprintf("Too many failed attempts. Try again in %s.", formatDuration(remaining)))
			return
		}
	}

	valid, err := h.admin.Verify(password)
	if err != nil {
		h.logger.Error("password check error", "category", "auth", "error", err)
		redirectWithError(w, r, redirectLogin, "Invalid password.")
		return
	}

	if !valid {
		h.logger.Warn("admin login failed", "category", "auth", "ip", clientIP)
		if h.loginProtection != nil {
			if locked, lockDuration := h.loginProtection.RecordFailedAttempt(clientIP); locked {
				h.logger.Warn("admin login locked out", "category", "auth", "ip", clientIP, "duration", lockDuration.String())
				redirectWithError(w, r, redirectLogin,
					fmt.Sprintf("Too many failed attempts. Try again in %s.", formatDuration(lockDuration)))
				return
			}
		}
		redirectWithError(w, r, redirectLogin, "Invalid password.")
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(clientIP)
	}

	// Regenerate session ID to prevent session fixation
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, h.logger, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyAdmin, true)

	h.logger.Info("admin logged in", "category", "auth", "ip", clientIP)
	http.Redirect(w, r, redirectAdminData, http.StatusSeeOther)
}

// Logout handles admin logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.tokens.Clear(r.Context())
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		h.logger.Error("session destroy error", "error", err)
	}

	h.logger.Info("admin logged out", "category", "auth", "ip", middleware.ClientIP(r))
	redirectWithMessage(w, r, redirectLogin, "You have been signed out.")
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
