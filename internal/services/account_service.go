package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/remix/authcore/internal/config"
	"github.com/remix/authcore/internal/models"
	pkgauth "github.com/remix/authcore/pkg/auth"
	pkglogger "github.com/remix/authcore/pkg/logger"
)

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateByEmailLocked(ctx context.Context, email string, fn models.AccountMutator) (*models.Account, error)
	UpdateByVerificationTokenLocked(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error)
	UpdateByUnlockTokenLocked(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error)
}

// AccountService owns registration, email verification, password
// authentication and the failed-attempt lockout bookkeeping.
type AccountService struct {
	repo        AccountRepository
	notifier    Notifier
	sec         config.SecurityConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAccountService creates a new AccountService
func NewAccountService(repo AccountRepository, notifier Notifier, sec config.SecurityConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AccountService {
	return &AccountService{
		repo:        repo,
		notifier:    notifier,
		sec:         sec,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RegistrationResult reports a created account and whether the verification
// email actually went out. The account exists either way.
type RegistrationResult struct {
	Account   *models.Account
	EmailSent bool
}

// NormalizeEmail applies the service-wide case policy: emails are compared
// and stored lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account and requests delivery of a
// verification link. Delivery failure after the account is persisted is a
// warning, not a rollback.
func (s *AccountService) Register(ctx context.Context, email, password string) (*RegistrationResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: email already registered",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return nil, models.ErrEmailAlreadyUsed
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check for existing account", slog.Any("error", err))
		return nil, fmt.Errorf("%w: account lookup failed", models.ErrUnavailable)
	}

	passwordHash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := pkgauth.GenerateToken()
	if err != nil {
		s.logger.Error("failed to generate verification token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	expiry := time.Now().Add(s.sec.VerificationTokenExpiry)

	account := &models.Account{
		Email:                   email,
		PasswordHash:            passwordHash,
		VerificationToken:       &token,
		VerificationTokenExpiry: &expiry,
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost the uniqueness race to a concurrent registration
			return nil, models.ErrEmailAlreadyUsed
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, fmt.Errorf("%w: account creation failed", models.ErrUnavailable)
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		AccountID: created.ID,
		Success:   true,
	})

	// Best-effort delivery after the commit. At-least-once semantics: the
	// caller can request a resend, the account stays created.
	emailSent := true
	if err := s.notifier.SendVerificationLink(ctx, created.Email, token); err != nil {
		s.logger.Warn("verification email delivery failed",
			slog.String("account_id", created.ID),
			slog.Any("error", err))
		emailSent = false
	}

	s.logger.Info("account registered",
		slog.String("account_id", created.ID),
		slog.String("email", pkglogger.SanitizedEmail(created.Email)))

	return &RegistrationResult{Account: created, EmailSent: emailSent}, nil
}

// VerifyEmail consumes a verification token. An expired token is regenerated
// and re-sent before the ErrTokenExpired failure is returned, so the caller
// always has a live link in flight. The verified transition is one-way; once
// the token pair is cleared a replay of the old token fails with
// ErrTokenInvalid.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return models.ErrTokenInvalid
	}

	now := time.Now()
	var resendToken string

	account, err := s.repo.UpdateByVerificationTokenLocked(ctx, token, func(a *models.Account) (bool, error) {
		if a.EmailVerified {
			return false, models.ErrAlreadyVerified
		}

		if a.VerificationExpired(now) {
			newToken, genErr := pkgauth.GenerateToken()
			if genErr != nil {
				return false, models.ErrInternalServer
			}
			newExpiry := now.Add(s.sec.VerificationTokenExpiry)
			a.VerificationToken = &newToken
			a.VerificationTokenExpiry = &newExpiry
			resendToken = newToken
			return true, models.ErrTokenExpired
		}

		a.EmailVerified = true
		a.VerificationToken = nil
		a.VerificationTokenExpiry = nil
		return true, nil
	})

	switch {
	case err == nil:
		s.auditLogger.Log(pkglogger.AuditEvent{
			EventType: pkglogger.EventEmailVerified,
			AccountID: account.ID,
			Success:   true,
		})
		s.logger.Info("email verified", slog.String("account_id", account.ID))
		return nil

	case errors.Is(err, models.ErrNotFound):
		s.logger.Info("verification token not found")
		return models.ErrTokenInvalid

	case errors.Is(err, models.ErrTokenExpired):
		// The regenerated token committed; re-send outside the lock.
		if sendErr := s.notifier.SendVerificationLink(ctx, account.Email, resendToken); sendErr != nil {
			s.logger.Warn("failed to re-send verification email",
				slog.String("account_id", account.ID),
				slog.Any("error", sendErr))
		}
		s.logger.Info("verification token expired, new token issued",
			slog.String("account_id", account.ID))
		return models.ErrTokenExpired

	case errors.Is(err, models.ErrAlreadyVerified):
		return models.ErrAlreadyVerified

	case errors.Is(err, models.ErrInternalServer):
		return models.ErrInternalServer

	default:
		s.logger.Error("email verification failed", slog.Any("error", err))
		return fmt.Errorf("%w: verification update failed", models.ErrUnavailable)
	}
}

// Authenticate checks credentials and maintains the lockout counter. Unknown
// email and wrong password produce the same ErrInvalidCredentials so callers
// cannot enumerate accounts. The whole check runs under the account's row
// lock: concurrent attempts serialize and counter increments are never lost.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = NormalizeEmail(email)
	now := time.Now()

	account, err := s.repo.UpdateByEmailLocked(ctx, email, func(a *models.Account) (bool, error) {
		save := false

		if a.LockExpired(now) {
			// Lazy unlock: the lock window has passed, clear it on read
			a.AccountLocked = false
			a.AccountLockedUntil = nil
			a.UnlockToken = nil
			a.FailedLoginAttempts = 0
			a.LastFailedLoginAt = nil
			save = true
		} else if a.Locked(now) {
			return false, models.ErrAccountLocked
		}

		if !a.EmailVerified {
			return save, models.ErrEmailNotVerified
		}

		if cmpErr := pkgauth.ComparePassword(a.PasswordHash, password); cmpErr != nil {
			a.FailedLoginAttempts++
			a.LastFailedLoginAt = &now

			if a.FailedLoginAttempts >= s.sec.MaxLoginAttempts {
				until := now.Add(s.sec.LockoutDuration)
				a.AccountLocked = true
				a.AccountLockedUntil = &until
				return true, models.ErrAccountLocked
			}
			return true, models.ErrInvalidCredentials
		}

		if a.FailedLoginAttempts != 0 || a.LastFailedLoginAt != nil {
			a.FailedLoginAttempts = 0
			a.LastFailedLoginAt = nil
			save = true
		}
		return save, nil
	})

	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Uniform outcome with wrong-password
			s.auditLogger.Log(pkglogger.AuditEvent{
				EventType:     pkglogger.EventLoginFailed,
				Success:       false,
				FailureReason: "invalid_credentials",
			})
			return nil, models.ErrInvalidCredentials
		}

		switch {
		case errors.Is(err, models.ErrAccountLocked),
			errors.Is(err, models.ErrEmailNotVerified),
			errors.Is(err, models.ErrInvalidCredentials):
			reason := "invalid_credentials"
			if errors.Is(err, models.ErrAccountLocked) {
				reason = "account_locked"
			} else if errors.Is(err, models.ErrEmailNotVerified) {
				reason = "email_not_verified"
			}
			s.auditLogger.Log(pkglogger.AuditEvent{
				EventType:     pkglogger.EventLoginFailed,
				AccountID:     accountID(account),
				Success:       false,
				FailureReason: reason,
			})
			// The lock was applied by this very attempt when the failure
			// stamp matches this call's clock reading.
			if errors.Is(err, models.ErrAccountLocked) && account != nil &&
				account.LastFailedLoginAt != nil && account.LastFailedLoginAt.Equal(now) {
				s.auditLogger.Log(pkglogger.AuditEvent{
					EventType: pkglogger.EventAccountLocked,
					AccountID: account.ID,
					Success:   true,
					Metadata: map[string]string{
						"trigger": "login_failures",
					},
				})
			}
			return nil, err

		default:
			s.logger.Error("authentication failed", slog.Any("error", err))
			return nil, fmt.Errorf("%w: authentication lookup failed", models.ErrUnavailable)
		}
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginInitiated,
		AccountID: account.ID,
		Success:   true,
	})

	return account, nil
}

func accountID(a *models.Account) string {
	if a == nil {
		return ""
	}
	return a.ID
}
