package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// Audit event types
const (
	EventRegister         = "register"
	EventEmailVerified    = "email_verified"
	EventLoginInitiated   = "login_initiated"
	EventLoginFailed      = "login_failed"
	EventChallengePassed  = "challenge_passed"
	EventChallengeFailed  = "challenge_failed"
	EventAccountLocked    = "account_locked"
	EventAccountUnlocked  = "account_unlocked"
	EventSessionCreated   = "session_created"
	EventSessionDestroyed = "session_destroyed"
)

// AuditLogger provides structured security audit logging
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log records a security event. Failures log at Warn so they stand out in
// aggregated logs.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account_security"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
