// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route patterns for chi router registration.
const (
	RouteHealth      = "/health"
	RouteHealthLive  = "/health/live"
	RouteHealthReady = "/health/ready"

	RouteTrack       = "/track"
	RouteTrackNonce  = "/nonce"
	RouteTrackEvent  = "/event"
	RouteTrackForm   = "/form"
	RouteTrackScript = "/tracking.js"

	RouteAdmin       = "/admin"
	RouteLogin       = "/login"
	RouteLogout      = "/logout"
	RouteAPIVisitors = "/api/visitors"
	RouteAPIVisitor  = "/api/visitors/{id}"
	RouteAPILive     = "/api/live"
	RouteData        = "/data"
	RouteDeleteOld   = "/data/delete-old"
	RouteDeleteUser  = "/data/delete-user"
	RouteDeleteAll   = "/data/delete-all"
	RouteDeleteRange = "/data/delete-range"
)

// Redirect targets.
const (
	redirectAdminData = "/admin/data"
	redirectLogin     = "/admin/login"
)

// Nonce actions. Public actions are signed; admin actions live in the
// admin session.
const (
	ActionTrackEvent  = "track_event"
	ActionTrackForm   = "track_form"
	ActionDeleteOld   = "delete_old"
	ActionDeleteUser  = "delete_user"
	ActionDeleteAll   = "delete_all"
	ActionDeleteRange = "delete_range"
)
