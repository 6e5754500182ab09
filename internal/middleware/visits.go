// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/visitrack/internal/tracking"
)

// VisitorAssigner resolves the identity cookie to a visitor.
type VisitorAssigner interface {
	Assign(ctx context.Context, token string, client tracking.Client) (tracking.Identity, error)
}

// VisitRecorder appends a page view to a visitor's session.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, visitorID, page string) (bool, error)
	Filter() tracking.AssetFilter
}

// DefaultUntrackedPrefixes are never treated as page views.
var DefaultUntrackedPrefixes = []string{"/admin", "/track", "/health"}

// VisitsConfig configures the visit tracking middleware.
type VisitsConfig struct {
	Assigner VisitorAssigner
	Recorder VisitRecorder
	Logger   *slog.Logger

	CookieDomain string
	CookiePath   string
	// Secure marks the identity cookie HTTPS-only.
	Secure bool
	// UntrackedPrefixes defaults to DefaultUntrackedPrefixes.
	UntrackedPrefixes []string
}

type visitorKey struct{}

// VisitorID returns the visitor identified for the request, or "".
func VisitorID(ctx context.Context) string {
	id, _ := ctx.Value(visitorKey{}).(string)
	return id
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.status = http.StatusOK
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// TrackVisits returns middleware that assigns the identity cookie on every
// page GET outside the untracked prefixes and records a page view once the
// page has been served successfully. Static assets get no identity. The
// cookie is reissued on each tracked request so its expiry rolls forward.
// Tracking failures are logged and never affect the response.
func TrackVisits(cfg VisitsConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.UntrackedPrefixes == nil {
		cfg.UntrackedPrefixes = DefaultUntrackedPrefixes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page := r.URL.RequestURI()
			if !shouldTrack(r, cfg.UntrackedPrefixes) || cfg.Recorder.Filter().Excluded(page) {
				next.ServeHTTP(w, r)
				return
			}

			var token string
			if c, err := r.Cookie(tracking.CookieName); err == nil {
				token = c.Value
			}

			identity, err := cfg.Assigner.Assign(r.Context(), token, tracking.Client{
				IP:        ClientIP(r),
				UserAgent: r.UserAgent(),
				Referrer:  r.Referer(),
				UTMSource: r.URL.Query().Get("utm_source"),
			})
			if err != nil {
				cfg.Logger.Error("visitor assignment failed", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     tracking.CookieName,
				Value:    identity.VisitorID,
				Path:     cfg.CookiePath,
				Domain:   cfg.CookieDomain,
				Expires:  identity.ExpiresAt,
				MaxAge:   int(tracking.CookieMaxAge.Seconds()),
				Secure:   cfg.Secure,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), visitorKey{}, identity.VisitorID)
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			if rw.status != http.StatusOK {
				cfg.Logger.Debug("skipping page view on non-200 response", "path", r.URL.Path, "status", rw.status)
				return
			}

			if _, err := cfg.Recorder.RecordVisit(context.WithoutCancel(r.Context()), identity.VisitorID, page); err != nil {
				cfg.Logger.Error("recording page visit failed", "error", err, "visitor_id", identity.VisitorID, "page", page)
			}
		})
	}
}

func shouldTrack(r *http.Request, untracked []string) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for _, prefix := range untracked {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}
