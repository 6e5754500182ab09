// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/visitrack/internal/middleware"
)

// Middleware is a standard HTTP middleware.
type Middleware = func(http.Handler) http.Handler

// RegisterHealthRoutes mounts the health checks.
func RegisterHealthRoutes(r chi.Router, h *HealthHandler) {
	r.Get(RouteHealth, h.Health)
	r.Get(RouteHealthLive, h.Liveness)
	r.Get(RouteHealthReady, h.Readiness)
}

// RegisterTrackRoutes mounts the public tracking endpoints under /track.
// limit is applied to all of them except the client script.
func RegisterTrackRoutes(r chi.Router, h *TrackHandler, limit Middleware) {
	r.Route(RouteTrack, func(r chi.Router) {
		r.Get(RouteTrackScript, h.Script)
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Get(RouteTrackNonce, h.Nonce)
			r.Post(RouteTrackEvent, h.Event)
			r.Post(RouteTrackForm, h.Form)
		})
	})
}

// AdminRoutes groups the handlers mounted under /admin.
type AdminRoutes struct {
	Sessions   *scs.SessionManager
	LoginLimit Middleware
	Auth       *AuthHandler
	API        *AdminHandler
	Data       *DataHandler
}

// RegisterAdminRoutes mounts login and the authenticated admin surface.
// The caller loads the session before these routes run.
func RegisterAdminRoutes(r chi.Router, a AdminRoutes) {
	r.Route(RouteAdmin, func(r chi.Router) {
		r.Get(RouteLogin, a.Auth.LoginForm)
		if a.LoginLimit != nil {
			r.With(a.LoginLimit).Post(RouteLogin, a.Auth.Login)
		} else {
			r.Post(RouteLogin, a.Auth.Login)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(a.Sessions))

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, redirectAdminData, http.StatusSeeOther)
			})
			r.Post(RouteLogout, a.Auth.Logout)

			r.Get(RouteAPIVisitors, a.API.Visitors)
			r.Get(RouteAPIVisitor, a.API.Visitor)
			r.Get(RouteAPILive, a.API.Live)

			r.Get(RouteData, a.Data.Page)
			r.Post(RouteDeleteOld, a.Data.DeleteOld)
			r.Post(RouteDeleteUser, a.Data.DeleteUser)
			r.Post(RouteDeleteAll, a.Data.DeleteAll)
			r.Post(RouteDeleteRange, a.Data.DeleteRange)
		})
	})
}
