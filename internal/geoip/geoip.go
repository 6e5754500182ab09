// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves client IPs to ISO country codes using a MaxMind
// GeoLite2-Country database.
package geoip

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
)

// Local is recorded for private and loopback addresses.
const Local = "LOCAL"

// Resolver looks up country codes. The zero value and a Resolver created
// with an empty path resolve nothing but still tag local addresses.
type Resolver struct {
	mu      sync.RWMutex
	db      *maxminddb.Reader
	path    string
	modTime time.Time
}

// geoRecord matches the GeoLite2-Country database structure.
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// New opens the database at path. An empty path disables lookups.
func New(path string) (*Resolver, error) {
	r := &Resolver{path: path}
	if path == "" {
		return r, nil
	}
	if _, err := r.Reload(); err != nil {
		return r, err
	}
	return r, nil
}

// Reload reopens the database when the file changed since the last load.
// It reports whether a new database was loaded. Safe to call from a cron job.
func (r *Resolver) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return false, nil
	}

	info, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("GeoIP database not found: %s", r.path)
		}
		return false, fmt.Errorf("GeoIP database stat error: %w", err)
	}

	// Skip reload if not modified
	if r.db != nil && info.ModTime().Equal(r.modTime) {
		return false, nil
	}

	db, err := maxminddb.Open(r.path)
	if err != nil {
		return false, fmt.Errorf("failed to open GeoIP database: %w", err)
	}

	if r.db != nil {
		_ = r.db.Close()
	}
	r.db = db
	r.modTime = info.ModTime()
	return true, nil
}

// LookupCountry returns the 2-letter ISO country code for ip, Local for
// private and loopback addresses, or "" when unknown.
func (r *Resolver) LookupCountry(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() {
		return Local
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return ""
	}

	var record geoRecord
	if err := r.db.Lookup(parsed, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// Enabled reports whether a database is loaded.
func (r *Resolver) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// Close closes the database.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
