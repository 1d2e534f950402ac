package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/remix/authcore/internal/config"
	"github.com/remix/authcore/internal/models"
	pkgauth "github.com/remix/authcore/pkg/auth"
	pkglogger "github.com/remix/authcore/pkg/logger"
)

// TwoFactorService issues and verifies the short-lived numeric codes that
// complete a login, with its own failure counter and lockout path.
type TwoFactorService struct {
	repo        AccountRepository
	notifier    Notifier
	sec         config.SecurityConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(repo AccountRepository, notifier Notifier, sec config.SecurityConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *TwoFactorService {
	return &TwoFactorService{
		repo:        repo,
		notifier:    notifier,
		sec:         sec,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// IssueChallenge stores a fresh numeric code on the account, displacing any
// prior pending code, and requests delivery. The code commits before the send
// so a delivery retry can reuse it.
func (s *TwoFactorService) IssueChallenge(ctx context.Context, account *models.Account) error {
	code, err := pkgauth.GenerateNumericCode(s.sec.TwoFactorCodeLength)
	if err != nil {
		s.logger.Error("failed to generate two-factor code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	expiry := time.Now().Add(s.sec.TwoFactorCodeExpiry)

	_, err = s.repo.UpdateByEmailLocked(ctx, account.Email, func(a *models.Account) (bool, error) {
		a.TwoFactorCode = &code
		a.TwoFactorCodeExpiry = &expiry
		return true, nil
	})
	if err != nil {
		s.logger.Error("failed to store two-factor code",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return fmt.Errorf("%w: challenge storage failed", models.ErrUnavailable)
	}

	if err := s.notifier.SendTwoFactorCode(ctx, account.Email, code); err != nil {
		// The pending code stays valid; the transport layer may retry.
		s.logger.Warn("two-factor code delivery failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return fmt.Errorf("%w: code delivery failed", models.ErrUnavailable)
	}

	s.logger.Info("two-factor challenge issued", slog.String("account_id", account.ID))
	return nil
}

// VerifyChallenge redeems a pending code. A mismatch counts against the
// independent two-factor failure counter; hitting its maximum locks the
// account and mints a single-use unlock token delivered by email. A match
// clears the pending code and resets both failure counters.
func (s *TwoFactorService) VerifyChallenge(ctx context.Context, email, code string) (*models.Account, error) {
	email = NormalizeEmail(email)
	now := time.Now()

	lockedOut := false

	account, err := s.repo.UpdateByEmailLocked(ctx, email, func(a *models.Account) (bool, error) {
		save := false

		if a.LockExpired(now) {
			a.AccountLocked = false
			a.AccountLockedUntil = nil
			a.UnlockToken = nil
			a.FailedLoginAttempts = 0
			a.LastFailedLoginAt = nil
			save = true
		} else if a.Locked(now) {
			return false, models.ErrAccountLocked
		}

		if !a.HasPendingChallenge() {
			return save, models.ErrNoActiveChallenge
		}

		if a.ChallengeExpired(now) {
			return save, models.ErrChallengeExpired
		}

		if subtle.ConstantTimeCompare([]byte(*a.TwoFactorCode), []byte(code)) != 1 {
			a.FailedTwoFactorAttempts++
			a.LastFailedTwoFactorAt = &now

			if a.FailedTwoFactorAttempts >= s.sec.MaxTwoFactorAttempts {
				unlockToken, genErr := pkgauth.GenerateToken()
				if genErr != nil {
					return false, models.ErrInternalServer
				}
				until := now.Add(s.sec.LockoutDuration)
				a.AccountLocked = true
				a.AccountLockedUntil = &until
				a.UnlockToken = &unlockToken
				lockedOut = true
			}
			return true, models.ErrChallengeInvalid
		}

		// Proof of legitimate access: the code matched, so clear the
		// challenge and forgive both counters.
		a.TwoFactorCode = nil
		a.TwoFactorCodeExpiry = nil
		a.FailedTwoFactorAttempts = 0
		a.LastFailedTwoFactorAt = nil
		a.FailedLoginAttempts = 0
		a.LastFailedLoginAt = nil
		return true, nil
	})

	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoActiveChallenge
		}

		switch {
		case errors.Is(err, models.ErrAccountLocked),
			errors.Is(err, models.ErrNoActiveChallenge),
			errors.Is(err, models.ErrChallengeExpired),
			errors.Is(err, models.ErrChallengeInvalid):
			s.auditLogger.Log(pkglogger.AuditEvent{
				EventType:     pkglogger.EventChallengeFailed,
				AccountID:     accountID(account),
				Success:       false,
				FailureReason: err.Error(),
			})

			if lockedOut {
				s.auditLogger.Log(pkglogger.AuditEvent{
					EventType: pkglogger.EventAccountLocked,
					AccountID: account.ID,
					Success:   true,
					Metadata: map[string]string{
						"trigger": "two_factor_failures",
					},
				})
				// Unlock email goes out after the lock committed.
				if sendErr := s.notifier.SendUnlockLink(ctx, account.Email, *account.UnlockToken); sendErr != nil {
					s.logger.Warn("unlock email delivery failed",
						slog.String("account_id", account.ID),
						slog.Any("error", sendErr))
				}
			}
			return nil, err

		case errors.Is(err, models.ErrInternalServer):
			return nil, models.ErrInternalServer

		default:
			s.logger.Error("challenge verification failed", slog.Any("error", err))
			return nil, fmt.Errorf("%w: challenge lookup failed", models.ErrUnavailable)
		}
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventChallengePassed,
		AccountID: account.ID,
		Success:   true,
	})
	s.logger.Info("two-factor challenge passed", slog.String("account_id", account.ID))

	return account, nil
}

// UnlockAccount consumes a single-use unlock token, clearing the lockout and
// both failure counters unconditionally. This is the escape hatch that works
// independently of the lockout expiry timer.
func (s *TwoFactorService) UnlockAccount(ctx context.Context, token string) error {
	if token == "" {
		return models.ErrTokenInvalid
	}

	account, err := s.repo.UpdateByUnlockTokenLocked(ctx, token, func(a *models.Account) (bool, error) {
		a.AccountLocked = false
		a.AccountLockedUntil = nil
		a.UnlockToken = nil
		a.FailedLoginAttempts = 0
		a.LastFailedLoginAt = nil
		a.FailedTwoFactorAttempts = 0
		a.LastFailedTwoFactorAt = nil
		return true, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("unlock token not found")
			return models.ErrTokenInvalid
		}
		s.logger.Error("account unlock failed", slog.Any("error", err))
		return fmt.Errorf("%w: unlock update failed", models.ErrUnavailable)
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventAccountUnlocked,
		AccountID: account.ID,
		Success:   true,
	})
	s.logger.Info("account unlocked", slog.String("account_id", account.ID))

	return nil
}
