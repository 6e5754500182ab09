// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geoip

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_EmptyPathDisables(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if r.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if got := r.LookupCountry("8.8.8.8"); got != "" {
		t.Errorf("LookupCountry() = %q, want empty", got)
	}
	reloaded, err := r.Reload()
	if err != nil || reloaded {
		t.Errorf("Reload() = %v, %v; want false, nil", reloaded, err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestNew_MissingFile(t *testing.T) {
	r, err := New(filepath.Join(t.TempDir(), "GeoLite2-Country.mmdb"))
	if err == nil {
		t.Fatal("New() should fail for a missing database")
	}
	if r == nil || r.Enabled() {
		t.Error("a disabled resolver should still be returned")
	}
}

func TestNew_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mmdb")
	if err := os.WriteFile(path, []byte("not a maxmind database"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("New() should fail for a corrupt database")
	}
}

func TestLookupCountry_LocalAndInvalid(t *testing.T) {
	var r Resolver

	tests := []struct {
		ip   string
		want string
	}{
		{"10.1.2.3", Local},
		{"172.16.0.1", Local},
		{"192.168.1.10", Local},
		{"127.0.0.1", Local},
		{"::1", Local},
		{"fd00::1", Local},
		{"fe80::1", Local},
		{"203.0.113.7", ""},
		{"N/A", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := r.LookupCountry(tt.ip); got != tt.want {
				t.Errorf("LookupCountry(%q) = %q, want %q", tt.ip, got, tt.want)
			}
		})
	}
}
