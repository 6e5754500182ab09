// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	_ "embed"
	"net/http"
)

//go:embed static/tracking.js
var trackingScript []byte

// Script handles GET /track/tracking.js, the client that calls the
// nonce, event and form endpoints.
func (h *TrackHandler) Script(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(trackingScript)
}
