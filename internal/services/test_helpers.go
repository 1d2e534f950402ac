package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remix/authcore/internal/models"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	CreateFunc                          func(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmailFunc                      func(ctx context.Context, email string) (*models.Account, error)
	UpdateByEmailLockedFunc             func(ctx context.Context, email string, fn models.AccountMutator) (*models.Account, error)
	UpdateByVerificationTokenLockedFunc func(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error)
	UpdateByUnlockTokenLockedFunc       func(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	account.ID = uuid.New().String()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	return account, nil
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdateByEmailLocked(ctx context.Context, email string, fn models.AccountMutator) (*models.Account, error) {
	if m.UpdateByEmailLockedFunc != nil {
		return m.UpdateByEmailLockedFunc(ctx, email, fn)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdateByVerificationTokenLocked(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error) {
	if m.UpdateByVerificationTokenLockedFunc != nil {
		return m.UpdateByVerificationTokenLockedFunc(ctx, token, fn)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) UpdateByUnlockTokenLocked(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error) {
	if m.UpdateByUnlockTokenLockedFunc != nil {
		return m.UpdateByUnlockTokenLockedFunc(ctx, token, fn)
	}
	return nil, models.ErrNotFound
}

// LockedUpdateOn returns a locked-update func that runs the mutator against
// the given account, mirroring the repository contract: the mutation persists
// even when the mutator returns a business error.
func LockedUpdateOn(account *models.Account) func(context.Context, string, models.AccountMutator) (*models.Account, error) {
	return func(ctx context.Context, _ string, fn models.AccountMutator) (*models.Account, error) {
		if account == nil {
			return nil, models.ErrNotFound
		}
		_, err := fn(account)
		return account, err
	}
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	SendVerificationLinkFunc func(ctx context.Context, email, token string) error
	SendTwoFactorCodeFunc    func(ctx context.Context, email, code string) error
	SendUnlockLinkFunc       func(ctx context.Context, email, token string) error
}

func (m *MockNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	if m.SendVerificationLinkFunc != nil {
		return m.SendVerificationLinkFunc(ctx, email, token)
	}
	return nil
}

func (m *MockNotifier) SendTwoFactorCode(ctx context.Context, email, code string) error {
	if m.SendTwoFactorCodeFunc != nil {
		return m.SendTwoFactorCodeFunc(ctx, email, code)
	}
	return nil
}

func (m *MockNotifier) SendUnlockLink(ctx context.Context, email, token string) error {
	if m.SendUnlockLinkFunc != nil {
		return m.SendUnlockLinkFunc(ctx, email, token)
	}
	return nil
}

// MemSessionRepository is an in-memory SessionRepository with the same
// guarded-statement semantics as the Postgres implementation.
type MemSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // keyed by token
}

func NewMemSessionRepository() *MemSessionRepository {
	return &MemSessionRepository{sessions: make(map[string]*models.Session)}
}

func (r *MemSessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.Token]; exists {
		return nil, models.ErrConflict
	}

	session.ID = uuid.New().String()
	session.CreatedAt = time.Now()
	stored := *session
	r.sessions[session.Token] = &stored
	return session, nil
}

func (r *MemSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *MemSessionRepository) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for token, s := range r.sessions {
		if s.AccountID == accountID {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func (r *MemSessionRepository) DeleteByToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *MemSessionRepository) Slide(ctx context.Context, token string, now, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || !s.ExpiresAt.After(now) {
		return false, nil
	}
	s.LastActivity = now
	s.ExpiresAt = expiresAt
	return true, nil
}

func (r *MemSessionRepository) DeleteIfExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || s.ExpiresAt.After(now) {
		return false, nil
	}
	delete(r.sessions, token)
	return true, nil
}

func (r *MemSessionRepository) DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for token, s := range r.sessions {
		if s.ExpiresAt.Before(now) || s.LastActivity.Before(staleBefore) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// SetExpiry rewrites a stored session's timestamps so tests can age it
func (r *MemSessionRepository) SetExpiry(token string, expiresAt, lastActivity time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[token]; ok {
		s.ExpiresAt = expiresAt
		s.LastActivity = lastActivity
	}
}

// Count reports the number of live sessions in the store
func (r *MemSessionRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Test account builders

func NewTestAccount(id, email string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:            id,
		Email:         email,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func NewTestAccountWithPassword(id, email, passwordHash string) *models.Account {
	account := NewTestAccount(id, email)
	account.PasswordHash = passwordHash
	return account
}

func NewTestAccountUnverified(id, email, token string, expiry time.Time) *models.Account {
	account := NewTestAccount(id, email)
	account.EmailVerified = false
	account.VerificationToken = &token
	account.VerificationTokenExpiry = &expiry
	return account
}

func NewTestAccountLocked(id, email string, until time.Time) *models.Account {
	account := NewTestAccount(id, email)
	account.AccountLocked = true
	account.AccountLockedUntil = &until
	return account
}

func NewTestAccountWithChallenge(id, email, code string, expiry time.Time) *models.Account {
	account := NewTestAccount(id, email)
	account.TwoFactorCode = &code
	account.TwoFactorCodeExpiry = &expiry
	return account
}
