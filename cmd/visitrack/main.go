// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/visitrack/internal/auth"
	"github.com/olegiv/visitrack/internal/config"
	"github.com/olegiv/visitrack/internal/counter"
	"github.com/olegiv/visitrack/internal/geoip"
	"github.com/olegiv/visitrack/internal/handler"
	"github.com/olegiv/visitrack/internal/logging"
	"github.com/olegiv/visitrack/internal/middleware"
	"github.com/olegiv/visitrack/internal/nonce"
	"github.com/olegiv/visitrack/internal/scheduler"
	"github.com/olegiv/visitrack/internal/session"
	"github.com/olegiv/visitrack/internal/store"
	"github.com/olegiv/visitrack/internal/tracking"
	"github.com/olegiv/visitrack/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

// Scheduled job names.
const (
	jobRetention    = "retention"
	jobGeoIPReload  = "geoip-reload"
	jobLoginCleanup = "login-cleanup"
)

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	hashPassword := flag.Bool("hash-password", false, "Read a password from stdin and print its argon2id hash")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "visitrack - visitor analytics server\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_SESSION_SECRET       Session and CSRF key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_DB_DRIVER            sqlite|mysql (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_DB_DSN               Database path or DSN (default: ./data/visitrack.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_ADMIN_PASSWORD_HASH  Admin password hash from -hash-password (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_SERVER_PORT          Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_TIMEZONE             Zone of stored timestamps (default: UTC)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_REDIS_URL            Redis URL for visitor id sequences (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_GEOIP_DB_PATH        GeoLite2-Country database (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VISITRACK_RETENTION_DAYS       Nightly delete of data older than N days (default: off)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
	if *showVersion {
		_, _ = fmt.Printf("visitrack %s\n", info)
		os.Exit(0)
	}

	if *hashPassword {
		if err := printPasswordHash(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// printPasswordHash reads one line from stdin and prints its hash.
func printPasswordHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashArgon2(password)
	if err != nil {
		return err
	}
	_, _ = fmt.Println(hash)
	return nil
}

func run(info version.Info) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(textHandler))
	slog.Info("starting visitrack", "version", info.String(), "env", cfg.Env, "timezone", cfg.Location().String())

	if cfg.DBDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	slog.Info("initializing database", "driver", cfg.DBDriver)
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()

	slog.Info("running database migrations")
	if err := store.Migrate(db, cfg.DBDriver); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	queries := store.New(db, cfg.Location())

	// Upgrade logger to also write WARN and ERROR logs to the audit log
	logger := slog.New(logging.NewAuditHandler(textHandler, queries))
	slog.SetDefault(logger)
	slog.Info("audit log integration enabled", "min_level", "warn")

	var sequencer tracking.Sequencer = store.NewSequenceStore(db)
	if cfg.UseRedisSequences() {
		redisSeq, err := counter.NewRedisSequencerFromURL(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			slog.Warn("redis unavailable, allocating visitor ids in the database", "category", logging.CategorySystem, "error", err)
		} else {
			defer func() { _ = redisSeq.Close() }()
			sequencer = redisSeq
			slog.Info("visitor id sequences use redis")
		}
	}

	countries, err := geoip.New(cfg.GeoIPDBPath)
	if err != nil {
		slog.Warn("geoip database not loaded", "category", logging.CategorySystem, "path", cfg.GeoIPDBPath, "error", err)
	}
	defer func() { _ = countries.Close() }()

	admin, err := auth.NewAdmin(cfg.AdminPasswordHash)
	if err != nil {
		return fmt.Errorf("loading admin password: %w", err)
	}
	if !admin.Enabled() {
		slog.Warn("admin login disabled, set VISITRACK_ADMIN_PASSWORD_HASH to enable it", "category", logging.CategoryAuth)
	}

	// Tracking components
	clock := tracking.SystemClock(cfg.Location())
	filter := tracking.NewAssetFilter(cfg.StaticSegment)
	assigner := tracking.NewAssigner(queries, sequencer, countries, clock, logger)
	recorder := tracking.NewRecorder(queries, filter, clock, logger)
	events := tracking.NewEventRecorder(queries, clock, logger)
	dashboard := tracking.NewDashboard(queries, queries, filter, cfg.Location())
	live := tracking.NewLiveQuery(queries, clock)
	retention := tracking.NewRetention(queries, queries, sequencer, clock, logger)

	sessionManager := session.New(db, cfg.DBDriver, cfg.IsDevelopment())
	tokens := nonce.NewSessionTokens(sessionManager)
	signer := nonce.NewSigner([]byte(cfg.SessionSecret))

	pages, err := handler.LoadPages()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	loginProtection := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	trackLimiter := middleware.NewIPRateLimiter(cfg.TrackRate, cfg.TrackBurst)
	defer trackLimiter.Stop()

	csrfMiddleware := middleware.CSRF(middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment()))
	securityHeaders := middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment()))

	// Scheduled jobs
	sched := scheduler.New(logger, cfg.Location())
	if cfg.RetentionEnabled() {
		if err := sched.AddJob(jobRetention, cfg.RetentionSchedule, 30*time.Minute, func(ctx context.Context) error {
			report, err := retention.DeleteOlderThan(ctx, cfg.RetentionDays)
			if err != nil {
				return err
			}
			return report.Err()
		}); err != nil {
			return err
		}
		slog.Info("scheduled retention enabled", "days", cfg.RetentionDays, "schedule", cfg.RetentionSchedule)
	}
	if cfg.GeoIPEnabled() {
		if err := sched.AddJob(jobGeoIPReload, "@hourly", time.Minute, func(context.Context) error {
			reloaded, err := countries.Reload()
			if reloaded {
				slog.Info("geoip database reloaded", "path", cfg.GeoIPDBPath)
			}
			return err
		}); err != nil {
			return err
		}
	}
	if err := sched.AddJob(jobLoginCleanup, "@every 10m", 0, func(context.Context) error {
		loginProtection.Cleanup()
		return nil
	}); err != nil {
		return err
	}
	sched.Start()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.GetHead)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		r.Use(sessionManager.LoadAndSave)
		handler.RegisterHealthRoutes(r, handler.NewHealthHandler(db, sessionManager, info, countries.Enabled()))
	})

	r.Group(func(r chi.Router) {
		r.Use(csrfMiddleware)
		handler.RegisterTrackRoutes(r, handler.NewTrackHandler(signer, events, recorder, logger), trackLimiter.Middleware())
	})

	r.Group(func(r chi.Router) {
		r.Use(securityHeaders)
		r.Use(sessionManager.LoadAndSave)
		r.Use(csrfMiddleware)
		handler.RegisterAdminRoutes(r, handler.AdminRoutes{
			Sessions:   sessionManager,
			LoginLimit: loginProtection.Middleware(),
			Auth:       handler.NewAuthHandler(admin, sessionManager, loginProtection, tokens, pages, logger),
			API:        handler.NewAdminHandler(dashboard, live, logger),
			Data:       handler.NewDataHandler(retention, queries, tokens, pages, cfg.RetentionDays, logger),
		})
	})

	// The tracked site: every page served here passes through visit tracking
	r.Group(func(r chi.Router) {
		r.Use(middleware.TrackVisits(middleware.VisitsConfig{
			Assigner:     assigner,
			Recorder:     recorder,
			Logger:       logger,
			CookieDomain: cfg.CookieDomain,
			CookiePath:   cfg.CookiePath,
			Secure:       !cfg.IsDevelopment(),
		}))
		r.Handle("/*", http.FileServer(http.Dir(cfg.SiteDir)))
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "site_dir", cfg.SiteDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
