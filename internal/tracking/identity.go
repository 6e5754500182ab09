// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/visitrack/internal/store"
)

// maxAllocationAttempts bounds how often a freshly allocated id may turn
// out to be taken before Assign gives up.
const maxAllocationAttempts = 5

const globalScope = "global"

var visitorIDPattern = regexp.MustCompile(`^Visitor_\d{4,}_\d{8}$`)

// ValidVisitorID reports whether id has the Visitor_<seq>_<YYYYMMDD> shape.
func ValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

// FormatVisitorID builds the identifier for sequence seq allocated on day.
func FormatVisitorID(seq int64, day time.Time) string {
	return fmt.Sprintf("Visitor_%04d_%s", seq, day.Format("20060102"))
}

func dayScope(t time.Time) string {
	return "day:" + t.Format("20060102")
}

// Client is the request metadata observed on a qualifying request.
type Client struct {
	IP        string
	UserAgent string
	Referrer  string
	UTMSource string
}

// Identity is the outcome of an assignment.
type Identity struct {
	VisitorID string
	// Created is true when a new session row was written.
	Created bool
	// ExpiresAt is when the identity cookie should expire.
	ExpiresAt time.Time
}

// Assigner derives, validates and allocates visitor identifiers.
type Assigner struct {
	sessions  SessionStore
	seq       Sequencer
	countries CountryResolver
	now       Clock
	logger    *slog.Logger
	policy    *bluemonday.Policy
}

// NewAssigner creates an Assigner. countries may be nil.
func NewAssigner(sessions SessionStore, seq Sequencer, countries CountryResolver, now Clock, logger *slog.Logger) *Assigner {
	return &Assigner{
		sessions:  sessions,
		seq:       seq,
		countries: countries,
		now:       now,
		logger:    logger,
		policy:    bluemonday.StrictPolicy(),
	}
}

// Assign resolves the client-presented token to a visitor identity.
//
// An absent or placeholder token gets a new id from the per-day sequence.
// A well-formed token naming an existing session is reused and the
// session's request metadata is refreshed. Any other token (stale, forged
// or malformed) gets a new id from the global sequence. New ids get a
// session row immediately.
func (a *Assigner) Assign(ctx context.Context, token string, client Client) (Identity, error) {
	now := a.now()
	meta := a.describe(client)

	token = strings.TrimSpace(token)
	scope := dayScope(now)
	if token != "" && token != unsetToken {
		if ValidVisitorID(token) {
			n, err := a.sessions.UpdateSessionMetadata(ctx, store.UpdateSessionMetadataParams{
				VisitorID:   token,
				IPAddress:   meta.IPAddress,
				Browser:     meta.Browser,
				OS:          meta.OS,
				DeviceType:  meta.DeviceType,
				Referrer:    meta.Referrer,
				CountryCode: meta.CountryCode,
				SeenAt:      now,
			})
			if err != nil {
				return Identity{}, err
			}
			if n > 0 {
				return Identity{VisitorID: token, ExpiresAt: now.Add(CookieMaxAge)}, nil
			}
		}
		a.logger.Debug("unknown visitor token, allocating from global sequence", "token", truncate(token, 64))
		scope = globalScope
	}

	floor, err := a.floor(ctx, scope, now)
	if err != nil {
		return Identity{}, err
	}

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		seq, err := a.seq.Next(ctx, scope, floor)
		if err != nil {
			return Identity{}, err
		}
		id := FormatVisitorID(seq, now)
		floor = seq

		exists, err := a.sessions.SessionExists(ctx, id)
		if err != nil {
			return Identity{}, err
		}
		if exists {
			continue
		}

		meta.VisitorID = id
		meta.StartedAt = now
		if _, err := a.sessions.CreateSession(ctx, meta); err != nil {
			// Lost a race for the same id; try the next number.
			if taken, _ := a.sessions.SessionExists(ctx, id); taken {
				continue
			}
			return Identity{}, err
		}

		a.logger.Debug("visitor assigned", "visitor_id", id, "scope", scope)
		return Identity{VisitorID: id, Created: true, ExpiresAt: now.Add(CookieMaxAge)}, nil
	}

	return Identity{}, fmt.Errorf("no free visitor id in scope %s after %d attempts", scope, maxAllocationAttempts)
}

// floor is the number of sessions already counted against scope.
func (a *Assigner) floor(ctx context.Context, scope string, now time.Time) (int64, error) {
	if scope == globalScope {
		n, err := a.sessions.CountSessions(ctx)
		if err != nil {
			return 0, fmt.Errorf("counting sessions: %w", err)
		}
		return n, nil
	}

	start, end := dayBounds(now)
	n, err := a.sessions.CountSessionsStartedBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("counting today's sessions: %w", err)
	}
	return n, nil
}

// describe turns raw request metadata into stored session fields.
func (a *Assigner) describe(client Client) store.CreateSessionParams {
	ua := ParseUserAgent(client.UserAgent)

	ip := strings.TrimSpace(client.IP)
	if ip == "" {
		ip = "N/A"
	}

	var country string
	if a.countries != nil && ip != "N/A" {
		country = a.countries.LookupCountry(ip)
	}

	return store.CreateSessionParams{
		IPAddress:   truncate(ip, 100),
		Browser:     ua.Browser,
		OS:          ua.OS,
		DeviceType:  ua.DeviceType,
		Referrer:    NormalizeReferrer(client.Referrer),
		CountryCode: country,
		UTMSource:   truncate(strings.TrimSpace(a.policy.Sanitize(client.UTMSource)), 255),
	}
}

// NormalizeReferrer keeps absolute http(s) referrers and maps everything
// else to "Direct".
func NormalizeReferrer(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return "Direct"
	}
	u, err := url.Parse(referrer)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "Direct"
	}
	return truncate(u.String(), 2048)
}
