// Package logging provides a slog handler that also persists audit-worthy
// records. Logs at WARN level and above are written to the audit_log table
// so bulk deletions and failed logins leave a durable trace.
package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/olegiv/visitrack/internal/store"
)

// Audit log levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Audit log categories.
const (
	CategoryAuth      = "auth"
	CategoryRetention = "retention"
	CategoryTracking  = "tracking"
	CategorySystem    = "system"
)

// writeTimeout bounds a single audit insert.
const writeTimeout = 5 * time.Second

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditEntry(ctx context.Context, arg store.CreateAuditEntryParams) error
}

// AuditHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level logs to the audit log.
type AuditHandler struct {
	inner  slog.Handler
	writer AuditWriter
	level  slog.Level // Minimum level to persist (default: WARN)
	attrs  []slog.Attr
	group  string
}

// NewAuditHandler creates an AuditHandler that wraps the given handler.
// Logs at WARN level and above will be written to both the wrapped handler and the audit log.
func NewAuditHandler(inner slog.Handler, writer AuditWriter) *AuditHandler {
	return NewAuditHandlerWithLevel(inner, writer, slog.LevelWarn)
}

// NewAuditHandlerWithLevel creates an AuditHandler with a custom minimum level.
func NewAuditHandlerWithLevel(inner slog.Handler, writer AuditWriter, level slog.Level) *AuditHandler {
	return &AuditHandler{
		inner:  inner,
		writer: writer,
		level:  level,
	}
}

// Enabled implements slog.Handler.
func (h *AuditHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AuditHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeAudit(ctx, r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *AuditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, h.qualify(a))
	}
	return &AuditHandler{
		inner:  h.inner.WithAttrs(attrs),
		writer: h.writer,
		level:  h.level,
		attrs:  merged,
		group:  h.group,
	}
}

// WithGroup implements slog.Handler.
func (h *AuditHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &AuditHandler{
		inner:  h.inner.WithGroup(name),
		writer: h.writer,
		level:  h.level,
		attrs:  h.attrs,
		group:  group,
	}
}

func (h *AuditHandler) qualify(a slog.Attr) slog.Attr {
	if h.group == "" {
		return a
	}
	return slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
}

// writeAudit persists one record. The request context may already be
// cancelled, so the insert runs on its own deadline. Failures are dropped:
// logging them would recurse into this handler.
func (h *AuditHandler) writeAudit(ctx context.Context, r slog.Record) {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	created := r.Time
	if created.IsZero() {
		created = time.Now()
	}

	_ = h.writer.CreateAuditEntry(ctx, store.CreateAuditEntryParams{
		Level:     auditLevel(r.Level),
		Category:  category(r.Message, attrs),
		Message:   r.Message,
		Metadata:  metadata(attrs),
		CreatedAt: created,
	})
}

// auditLevel converts a slog.Level to an audit log level.
func auditLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// category returns the "category" attribute, or infers one from the message.
func category(msg string, attrs []slog.Attr) string {
	for _, a := range attrs {
		if a.Key == "category" {
			if c := a.Value.String(); c != "" {
				return c
			}
		}
	}

	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "auth") || strings.Contains(msg, "login") || strings.Contains(msg, "logout"):
		return CategoryAuth
	case strings.Contains(msg, "retention") || strings.Contains(msg, "purge"):
		return CategoryRetention
	case strings.Contains(msg, "visit") || strings.Contains(msg, "event") || strings.Contains(msg, "tracking"):
		return CategoryTracking
	default:
		return CategorySystem
	}
}

// metadata renders the attributes, minus category, as a JSON object of strings.
func metadata(attrs []slog.Attr) string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.Key == "category" {
			continue
		}
		m[a.Key] = a.Value.Resolve().String()
	}
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
