// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // zone data for minimal container images

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

// knownWeakSecrets contains default/example secrets that must be rejected in production.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver      string `env:"VISITRACK_DB_DRIVER" envDefault:"sqlite"`
	DBDSN         string `env:"VISITRACK_DB_DSN" envDefault:"./data/visitrack.db"`
	SessionSecret string `env:"VISITRACK_SESSION_SECRET,required"`
	ServerHost    string `env:"VISITRACK_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"VISITRACK_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"VISITRACK_ENV" envDefault:"development"`
	LogLevel      string `env:"VISITRACK_LOG_LEVEL" envDefault:"info"`
	Timezone      string `env:"VISITRACK_TIMEZONE" envDefault:"UTC"`
	SiteDir       string `env:"VISITRACK_SITE_DIR" envDefault:"./site"`

	// Admin login
	AdminPasswordHash string `env:"VISITRACK_ADMIN_PASSWORD_HASH"` // argon2id hash; empty disables login

	// Identity cookie and page filter
	CookieDomain  string `env:"VISITRACK_COOKIE_DOMAIN"`
	CookiePath    string `env:"VISITRACK_COOKIE_PATH" envDefault:"/"`
	StaticSegment string `env:"VISITRACK_STATIC_SEGMENT" envDefault:"/static/"`

	// Sequence allocation
	RedisURL    string `env:"VISITRACK_REDIS_URL"` // Optional; sequences use the database when empty
	RedisPrefix string `env:"VISITRACK_REDIS_PREFIX" envDefault:"visitrack:"`

	// GeoIP configuration
	GeoIPDBPath string `env:"VISITRACK_GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file

	// Scheduled retention
	RetentionDays     int    `env:"VISITRACK_RETENTION_DAYS" envDefault:"0"`
	RetentionSchedule string `env:"VISITRACK_RETENTION_SCHEDULE" envDefault:"30 0 * * *"`

	// Public tracking endpoint limits (per client IP)
	TrackRate  float64 `env:"VISITRACK_TRACK_RATE" envDefault:"5"`
	TrackBurst int     `env:"VISITRACK_TRACK_BURST" envDefault:"20"`

	loc *time.Location
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisSequences returns true if Redis is configured for id allocation.
func (c Config) UseRedisSequences() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// AdminEnabled returns true if an admin password hash is configured.
func (c Config) AdminEnabled() bool {
	return c.AdminPasswordHash != ""
}

// RetentionEnabled returns true if the scheduled age-based delete is on.
func (c Config) RetentionEnabled() bool {
	return c.RetentionDays > 0
}

// Location returns the zone all stored timestamps are written in.
func (c Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MinSessionSecretLength is the minimum required length for the session secret.
// AES-256 requires 32 bytes minimum for secure encryption.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate session secret length
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("VISITRACK_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	// Reject known weak/default secrets
	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("VISITRACK_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("VISITRACK_SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	switch cfg.DBDriver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("VISITRACK_DB_DRIVER must be sqlite or mysql, got %q", cfg.DBDriver)
	}

	switch cfg.Env {
	case "development", "production":
	default:
		return nil, fmt.Errorf("VISITRACK_ENV must be development or production, got %q", cfg.Env)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("VISITRACK_TIMEZONE: %w", err)
	}
	cfg.loc = loc

	if cfg.RetentionDays < 0 {
		return nil, fmt.Errorf("VISITRACK_RETENTION_DAYS must not be negative, got %d", cfg.RetentionDays)
	}
	if cfg.RetentionEnabled() {
		if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
			return nil, fmt.Errorf("VISITRACK_RETENTION_SCHEDULE %q: %w", cfg.RetentionSchedule, err)
		}
	}

	if cfg.TrackRate <= 0 || cfg.TrackBurst < 1 {
		return nil, fmt.Errorf("VISITRACK_TRACK_RATE and VISITRACK_TRACK_BURST must be positive")
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
