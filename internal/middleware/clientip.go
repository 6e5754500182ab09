// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP from the request. It prefers the headers
// set by reverse proxies (X-Real-IP, then the first X-Forwarded-For hop)
// and falls back to RemoteAddr without its port. It returns "" when none
// holds a parsable address.
func ClientIP(r *http.Request) string {
	if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := validIP(first); ip != "" {
			return ip
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return validIP(host)
}

func validIP(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}
