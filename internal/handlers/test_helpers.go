package handlers

import (
	"context"

	"github.com/remix/authcore/internal/models"
	"github.com/remix/authcore/internal/services"
	pkgauth "github.com/remix/authcore/pkg/auth"
)

// testTiming returns an inert failure delay so handler tests run instantly
func testTiming() *pkgauth.TimingDelay {
	return pkgauth.NewTimingDelay(pkgauth.TimingConfig{})
}

// MockAccountService implements AccountServiceInterface with function fields
type MockAccountService struct {
	RegisterFunc     func(ctx context.Context, email, password string) (*services.RegistrationResult, error)
	VerifyEmailFunc  func(ctx context.Context, token string) error
	AuthenticateFunc func(ctx context.Context, email, password string) (*models.Account, error)
}

func (m *MockAccountService) Register(ctx context.Context, email, password string) (*services.RegistrationResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) VerifyEmail(ctx context.Context, token string) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, token)
	}
	return models.ErrInternalServer
}

func (m *MockAccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, email, password)
	}
	return nil, models.ErrInternalServer
}

// MockTwoFactorService implements TwoFactorServiceInterface with function fields
type MockTwoFactorService struct {
	IssueChallengeFunc  func(ctx context.Context, account *models.Account) error
	VerifyChallengeFunc func(ctx context.Context, email, code string) (*models.Account, error)
	UnlockAccountFunc   func(ctx context.Context, token string) error
}

func (m *MockTwoFactorService) IssueChallenge(ctx context.Context, account *models.Account) error {
	if m.IssueChallengeFunc != nil {
		return m.IssueChallengeFunc(ctx, account)
	}
	return nil
}

func (m *MockTwoFactorService) VerifyChallenge(ctx context.Context, email, code string) (*models.Account, error) {
	if m.VerifyChallengeFunc != nil {
		return m.VerifyChallengeFunc(ctx, email, code)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorService) UnlockAccount(ctx context.Context, token string) error {
	if m.UnlockAccountFunc != nil {
		return m.UnlockAccountFunc(ctx, token)
	}
	return models.ErrInternalServer
}

// MockSessionService implements SessionServiceInterface with function fields
type MockSessionService struct {
	CreateFunc     func(ctx context.Context, account *models.Account) (*models.Session, error)
	ValidateFunc   func(ctx context.Context, token string) (bool, error)
	InvalidateFunc func(ctx context.Context, token string) error
}

func (m *MockSessionService) Create(ctx context.Context, account *models.Account) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockSessionService) Validate(ctx context.Context, token string) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token)
	}
	return false, nil
}

func (m *MockSessionService) Invalidate(ctx context.Context, token string) error {
	if m.InvalidateFunc != nil {
		return m.InvalidateFunc(ctx, token)
	}
	return nil
}
