// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"github.com/mileusna/useragent"
)

// Device type labels stored on sessions.
const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"
	DeviceDesktop = "Desktop"
)

// ParsedUA holds the parts of a user agent stored on a session.
type ParsedUA struct {
	Browser    string
	OS         string
	DeviceType string
}

// ParseUserAgent extracts browser, OS, and device type from a user agent string.
func ParseUserAgent(uaString string) ParsedUA {
	ua := useragent.Parse(uaString)

	result := ParsedUA{
		Browser: ua.Name,
		OS:      ua.OS,
	}

	if result.Browser == "" {
		result.Browser = "Unknown"
	}
	if result.OS == "" {
		result.OS = "Unknown"
	}

	switch {
	case ua.Mobile:
		result.DeviceType = DeviceMobile
	case ua.Tablet:
		result.DeviceType = DeviceTablet
	case ua.Bot:
		result.DeviceType = DeviceBot
	default:
		result.DeviceType = DeviceDesktop
	}

	return result
}
