package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/remix/authcore/internal/config"
	"github.com/remix/authcore/internal/models"
	pkglogger "github.com/remix/authcore/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		MaxLoginAttempts:        5,
		LockoutDuration:         1 * time.Hour,
		MaxTwoFactorAttempts:    3,
		TwoFactorCodeLength:     6,
		TwoFactorCodeExpiry:     5 * time.Minute,
		VerificationTokenExpiry: 24 * time.Hour,
		SessionTimeout:          30 * time.Minute,
		SessionSweepInterval:    10 * time.Minute,
	}
}

func newTestAccountService(repo AccountRepository, notifier Notifier) *AccountService {
	logger := slog.Default()
	return NewAccountService(repo, notifier, testSecurityConfig(), logger, pkglogger.NewAuditLogger(logger))
}

// testHash hashes at MinCost to keep the suite fast
func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

// ============================================================================
// Register
// ============================================================================

func TestAccountService_Register_Success(t *testing.T) {
	var created *models.Account
	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return nil, models.ErrNotFound
		},
		CreateFunc: func(ctx context.Context, account *models.Account) (*models.Account, error) {
			account.ID = "acct-1"
			created = account
			return account, nil
		},
	}

	var sentEmail, sentToken string
	notifier := &MockNotifier{
		SendVerificationLinkFunc: func(ctx context.Context, email, token string) error {
			sentEmail = email
			sentToken = token
			return nil
		},
	}

	svc := newTestAccountService(repo, notifier)
	result, err := svc.Register(context.Background(), "Alice@Example.com", "correcthorse1")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.EmailSent)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.False(t, created.EmailVerified)
	require.NotNil(t, created.VerificationToken)
	require.NotNil(t, created.VerificationTokenExpiry)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *created.VerificationTokenExpiry, time.Minute)
	assert.Equal(t, "alice@example.com", sentEmail)
	assert.Equal(t, *created.VerificationToken, sentToken)
	assert.NotEmpty(t, created.PasswordHash)
	assert.NotContains(t, created.PasswordHash, "correcthorse1")
}

func TestAccountService_Register_EmailAlreadyUsed(t *testing.T) {
	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return NewTestAccount("acct-1", email), nil
		},
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	result, err := svc.Register(context.Background(), "alice@example.com", "correcthorse1")

	assert.ErrorIs(t, err, models.ErrEmailAlreadyUsed)
	assert.Nil(t, result)
}

func TestAccountService_Register_ConcurrentDuplicateMapsToEmailAlreadyUsed(t *testing.T) {
	// The uniqueness race: GetByEmail misses but the INSERT hits the
	// constraint because another request won.
	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return nil, models.ErrNotFound
		},
		CreateFunc: func(ctx context.Context, account *models.Account) (*models.Account, error) {
			return nil, models.ErrConflict
		},
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Register(context.Background(), "alice@example.com", "correcthorse1")

	assert.ErrorIs(t, err, models.ErrEmailAlreadyUsed)
}

func TestAccountService_Register_InvalidPassword(t *testing.T) {
	svc := newTestAccountService(&MockAccountRepository{}, &MockNotifier{})

	for _, password := range []string{"short1", "nodigitshere", "1234567890"} {
		result, err := svc.Register(context.Background(), "alice@example.com", password)
		assert.Error(t, err, "password %q should be rejected", password)
		assert.Nil(t, result)
	}
}

func TestAccountService_Register_DeliveryFailureKeepsAccount(t *testing.T) {
	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return nil, models.ErrNotFound
		},
	}
	notifier := &MockNotifier{
		SendVerificationLinkFunc: func(ctx context.Context, email, token string) error {
			return models.ErrUnavailable
		},
	}

	svc := newTestAccountService(repo, notifier)
	result, err := svc.Register(context.Background(), "alice@example.com", "correcthorse1")

	require.NoError(t, err)
	require.NotNil(t, result.Account)
	assert.False(t, result.EmailSent)
}

// ============================================================================
// VerifyEmail
// ============================================================================

func TestAccountService_VerifyEmail_Success(t *testing.T) {
	expiry := time.Now().Add(1 * time.Hour)
	account := NewTestAccountUnverified("acct-1", "alice@example.com", "tok-abc", expiry)

	repo := &MockAccountRepository{
		UpdateByVerificationTokenLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	err := svc.VerifyEmail(context.Background(), "tok-abc")

	require.NoError(t, err)
	assert.True(t, account.EmailVerified)
	assert.Nil(t, account.VerificationToken)
	assert.Nil(t, account.VerificationTokenExpiry)
}

func TestAccountService_VerifyEmail_UnknownToken(t *testing.T) {
	repo := &MockAccountRepository{
		UpdateByVerificationTokenLockedFunc: LockedUpdateOn(nil),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	err := svc.VerifyEmail(context.Background(), "no-such-token")

	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestAccountService_VerifyEmail_EmptyToken(t *testing.T) {
	svc := newTestAccountService(&MockAccountRepository{}, &MockNotifier{})
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), ""), models.ErrTokenInvalid)
}

func TestAccountService_VerifyEmail_ExpiredRegeneratesAndResends(t *testing.T) {
	expiry := time.Now().Add(-1 * time.Minute)
	account := NewTestAccountUnverified("acct-1", "alice@example.com", "tok-old", expiry)

	repo := &MockAccountRepository{
		UpdateByVerificationTokenLockedFunc: LockedUpdateOn(account),
	}

	var resentToken string
	notifier := &MockNotifier{
		SendVerificationLinkFunc: func(ctx context.Context, email, token string) error {
			resentToken = token
			return nil
		},
	}

	svc := newTestAccountService(repo, notifier)
	err := svc.VerifyEmail(context.Background(), "tok-old")

	assert.ErrorIs(t, err, models.ErrTokenExpired)
	assert.False(t, account.EmailVerified)
	require.NotNil(t, account.VerificationToken)
	assert.NotEqual(t, "tok-old", *account.VerificationToken)
	assert.True(t, account.VerificationTokenExpiry.After(time.Now()))
	assert.Equal(t, *account.VerificationToken, resentToken)
}

func TestAccountService_VerifyEmail_ReplayAfterSuccessIsTokenInvalid(t *testing.T) {
	expiry := time.Now().Add(1 * time.Hour)
	account := NewTestAccountUnverified("acct-1", "alice@example.com", "tok-abc", expiry)

	// Emulate the token-column lookup: once the token is cleared the
	// account no longer matches.
	repo := &MockAccountRepository{
		UpdateByVerificationTokenLockedFunc: func(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error) {
			if account.VerificationToken == nil || *account.VerificationToken != token {
				return nil, models.ErrNotFound
			}
			_, err := fn(account)
			return account, err
		},
	}

	svc := newTestAccountService(repo, &MockNotifier{})

	require.NoError(t, svc.VerifyEmail(context.Background(), "tok-abc"))
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), "tok-abc"), models.ErrTokenInvalid)
}

// ============================================================================
// Authenticate
// ============================================================================

func TestAccountService_Authenticate_Success(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	got, err := svc.Authenticate(context.Background(), "alice@example.com", "pw1pw1pw1")

	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)
}

func TestAccountService_Authenticate_UnknownEmailIsInvalidCredentials(t *testing.T) {
	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(nil),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Authenticate(context.Background(), "ghost@example.com", "whatever1")

	// Same outcome as wrong-password so accounts cannot be enumerated
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAccountService_Authenticate_WrongPasswordIncrementsCounter(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Authenticate(context.Background(), "alice@example.com", "wrong1234")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 1, account.FailedLoginAttempts)
	assert.NotNil(t, account.LastFailedLoginAt)
	assert.False(t, account.AccountLocked)
}

func TestAccountService_Authenticate_EmailNotVerified(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))
	account.EmailVerified = false

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Authenticate(context.Background(), "alice@example.com", "pw1pw1pw1")

	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestAccountService_Authenticate_ThresholdLocksAccount(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))
	account.FailedLoginAttempts = 4

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Authenticate(context.Background(), "alice@example.com", "wrong1234")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.True(t, account.AccountLocked)
	require.NotNil(t, account.AccountLockedUntil)
	assert.WithinDuration(t, time.Now().Add(1*time.Hour), *account.AccountLockedUntil, time.Minute)
}

func TestAccountService_Authenticate_LockedRejectsCorrectPassword(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))
	until := time.Now().Add(30 * time.Minute)
	account.AccountLocked = true
	account.AccountLockedUntil = &until
	account.FailedLoginAttempts = 5

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Authenticate(context.Background(), "alice@example.com", "pw1pw1pw1")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	// An already-active lock is not re-stamped
	assert.Equal(t, until, *account.AccountLockedUntil)
	assert.Equal(t, 5, account.FailedLoginAttempts)
}

func TestAccountService_Authenticate_ExpiredLockUnlocksLazily(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))
	until := time.Now().Add(-1 * time.Minute)
	account.AccountLocked = true
	account.AccountLockedUntil = &until
	account.FailedLoginAttempts = 5

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	got, err := svc.Authenticate(context.Background(), "alice@example.com", "pw1pw1pw1")

	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)
	assert.False(t, account.AccountLocked)
	assert.Nil(t, account.AccountLockedUntil)
	assert.Zero(t, account.FailedLoginAttempts)
	assert.Nil(t, account.LastFailedLoginAt)
}

func TestAccountService_Authenticate_SuccessResetsCounters(t *testing.T) {
	account := NewTestAccountWithPassword("acct-1", "alice@example.com", testHash(t, "pw1pw1pw1"))
	account.FailedLoginAttempts = 3
	stamp := time.Now().Add(-5 * time.Minute)
	account.LastFailedLoginAt = &stamp

	repo := &MockAccountRepository{
		UpdateByEmailLockedFunc: LockedUpdateOn(account),
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	_, err := svc.Authenticate(context.Background(), "alice@example.com", "pw1pw1pw1")

	require.NoError(t, err)
	assert.Zero(t, account.FailedLoginAttempts)
	assert.Nil(t, account.LastFailedLoginAt)
}

// Full lifecycle: register, premature login, verify, five bad passwords,
// locked out even with the right one.
func TestAccountService_LifecycleScenario(t *testing.T) {
	var account *models.Account

	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			if account != nil && account.Email == email {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
		CreateFunc: func(ctx context.Context, a *models.Account) (*models.Account, error) {
			a.ID = "acct-1"
			account = a
			return a, nil
		},
		UpdateByEmailLockedFunc: func(ctx context.Context, email string, fn models.AccountMutator) (*models.Account, error) {
			if account == nil || account.Email != email {
				return nil, models.ErrNotFound
			}
			_, err := fn(account)
			return account, err
		},
		UpdateByVerificationTokenLockedFunc: func(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error) {
			if account == nil || account.VerificationToken == nil || *account.VerificationToken != token {
				return nil, models.ErrNotFound
			}
			_, err := fn(account)
			return account, err
		},
	}

	svc := newTestAccountService(repo, &MockNotifier{})
	ctx := context.Background()

	result, err := svc.Register(ctx, "alice@example.com", "pw1pw1pw1")
	require.NoError(t, err)

	// Hash at MinCost so the repeated comparisons stay fast
	account.PasswordHash = testHash(t, "pw1pw1pw1")

	_, err = svc.Authenticate(ctx, "alice@example.com", "pw1pw1pw1")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)

	require.NoError(t, svc.VerifyEmail(ctx, *result.Account.VerificationToken))

	for i := 1; i <= 4; i++ {
		_, err = svc.Authenticate(ctx, "alice@example.com", "wrongpw99")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err = svc.Authenticate(ctx, "alice@example.com", "wrongpw99")
	assert.ErrorIs(t, err, models.ErrAccountLocked, "fifth failure trips the lock")

	_, err = svc.Authenticate(ctx, "alice@example.com", "pw1pw1pw1")
	assert.ErrorIs(t, err, models.ErrAccountLocked, "correct password inside the lock window")
}
