// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		browser    string
		deviceType string
	}{
		{"firefox desktop", firefoxUA, "Firefox", DeviceDesktop},
		{"safari iphone", iphoneUA, "Safari", DeviceMobile},
		{
			"chrome desktop",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Chrome",
			DeviceDesktop,
		},
		{
			"googlebot",
			"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			"",
			DeviceBot,
		},
		{
			"ipad",
			"Mozilla/5.0 (iPad; CPU OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			"",
			DeviceTablet,
		},
		{"empty", "", "Unknown", DeviceDesktop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUserAgent(tt.ua)
			if tt.browser != "" {
				assert.Equal(t, tt.browser, got.Browser)
			}
			assert.NotEmpty(t, got.Browser)
			assert.Equal(t, tt.deviceType, got.DeviceType)
			assert.NotEmpty(t, got.OS)
		})
	}
}
