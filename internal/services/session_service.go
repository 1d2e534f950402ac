package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/remix/authcore/internal/config"
	"github.com/remix/authcore/internal/models"
	pkgauth "github.com/remix/authcore/pkg/auth"
	pkglogger "github.com/remix/authcore/pkg/logger"
)

// SessionRepository defines the interface for session persistence. Slide and
// DeleteIfExpired are single guarded statements so per-token validation
// serializes at the database row, not in process.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
	DeleteByToken(ctx context.Context, token string) error
	Slide(ctx context.Context, token string, now, expiresAt time.Time) (bool, error)
	DeleteIfExpired(ctx context.Context, token string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error)
}

// SessionService issues opaque session tokens, validates and slides their
// expiry on each use, and reaps stale sessions.
type SessionService struct {
	repo        SessionRepository
	timeout     time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, sec config.SecurityConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		repo:        repo,
		timeout:     sec.SessionTimeout,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create mints a session for a fully authenticated account. Any prior
// session the account owned is displaced silently.
func (s *SessionService) Create(ctx context.Context, account *models.Account) (*models.Session, error) {
	displaced, err := s.repo.DeleteByAccountID(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to displace prior sessions",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: session displacement failed", models.ErrUnavailable)
	}
	if displaced > 0 {
		s.logger.Info("prior sessions displaced",
			slog.String("account_id", account.ID),
			slog.Int64("count", displaced))
	}

	token, err := pkgauth.GenerateToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	session := &models.Session{
		AccountID:    account.ID,
		Token:        token,
		ExpiresAt:    now.Add(s.timeout),
		LastActivity: now,
	}

	created, err := s.repo.Create(ctx, session)
	if err != nil {
		s.logger.Error("failed to create session",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: session creation failed", models.ErrUnavailable)
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventSessionCreated,
		AccountID: account.ID,
		Success:   true,
	})

	return created, nil
}

// Validate checks a token and slides the expiry window forward on success.
// Unknown tokens fail closed; expired sessions are reaped on the spot.
func (s *SessionService) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	now := time.Now()

	slid, err := s.repo.Slide(ctx, token, now, now.Add(s.timeout))
	if err != nil {
		s.logger.Error("session slide failed", slog.Any("error", err))
		return false, fmt.Errorf("%w: session validation failed", models.ErrUnavailable)
	}
	if slid {
		return true, nil
	}

	// Either unknown or expired; reap the expired case lazily.
	reaped, err := s.repo.DeleteIfExpired(ctx, token, now)
	if err != nil {
		s.logger.Error("lazy session reap failed", slog.Any("error", err))
		return false, fmt.Errorf("%w: session validation failed", models.ErrUnavailable)
	}
	if reaped {
		s.logger.Info("expired session reaped on validation")
	}

	return false, nil
}

// Invalidate destroys a session. Absence is not an error, so logout is
// idempotent.
func (s *SessionService) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.repo.DeleteByToken(ctx, token); err != nil {
		s.logger.Error("session invalidation failed", slog.Any("error", err))
		return fmt.Errorf("%w: session invalidation failed", models.ErrUnavailable)
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventSessionDestroyed,
		Success:   true,
	})

	return nil
}

// SweepExpired purges all sessions past expiry or idle beyond the timeout.
// The safety net behind the lazy reap in Validate, for sessions nobody
// presents again.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now()

	removed, err := s.repo.DeleteExpired(ctx, now, now.Add(-s.timeout))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}

	return removed, nil
}

// IsInfraError reports whether err is an infrastructure failure rather than a
// state-machine outcome, so the transport layer can retry it.
func IsInfraError(err error) bool {
	return errors.Is(err, models.ErrUnavailable) || errors.Is(err, models.ErrInternalServer)
}
