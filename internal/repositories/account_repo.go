package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/remix/authcore/internal/database"
	"github.com/remix/authcore/internal/models"
)

type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, password_hash, email_verified,
	verification_token, verification_token_expiry,
	failed_login_attempts, last_failed_login_at,
	account_locked, account_locked_until, unlock_token,
	two_factor_code, two_factor_code_expiry,
	failed_2fa_attempts, last_failed_2fa_at,
	created_at, updated_at`

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account

	err := scanner.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.EmailVerified,
		&a.VerificationToken, &a.VerificationTokenExpiry,
		&a.FailedLoginAttempts, &a.LastFailedLoginAt,
		&a.AccountLocked, &a.AccountLockedUntil, &a.UnlockToken,
		&a.TwoFactorCode, &a.TwoFactorCodeExpiry,
		&a.FailedTwoFactorAttempts, &a.LastFailedTwoFactorAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, email, password_hash, email_verified,
			verification_token, verification_token_expiry,
			failed_login_attempts, account_locked, failed_2fa_attempts,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + accountColumns

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.EmailVerified,
		account.VerificationToken, account.VerificationTokenExpiry,
		account.FailedLoginAttempts, account.AccountLocked, account.FailedTwoFactorAttempts,
		account.CreatedAt, account.UpdatedAt,
	))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, email))
}

// UpdateByEmailLocked applies fn to the account with this email while holding
// its row lock, so concurrent attempts against one account serialize here.
func (r *AccountRepository) UpdateByEmailLocked(ctx context.Context, email string, fn models.AccountMutator) (*models.Account, error) {
	return r.lockedUpdate(ctx, "email = $1", email, fn)
}

// UpdateByVerificationTokenLocked is UpdateByEmailLocked keyed on the pending
// verification token.
func (r *AccountRepository) UpdateByVerificationTokenLocked(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error) {
	return r.lockedUpdate(ctx, "verification_token = $1", token, fn)
}

// UpdateByUnlockTokenLocked is UpdateByEmailLocked keyed on the unlock token.
func (r *AccountRepository) UpdateByUnlockTokenLocked(ctx context.Context, token string, fn models.AccountMutator) (*models.Account, error) {
	return r.lockedUpdate(ctx, "unlock_token = $1", token, fn)
}

// lockedUpdate selects one account FOR UPDATE, runs fn, and persists when fn
// says so. The transaction commits even when fn returns a business error, so
// failure-counter increments are never lost to a rollback.
func (r *AccountRepository) lockedUpdate(ctx context.Context, where string, arg interface{}, fn models.AccountMutator) (*models.Account, error) {
	var account *models.Account
	var fnErr error

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where + ` FOR UPDATE`

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		account, err = scanAccountRow(tx.QueryRow(ctx, query, arg))
		if err != nil {
			return err
		}

		// fn's error is held aside and returned after the commit; only a
		// failed persist rolls the transaction back.
		var save bool
		save, fnErr = fn(account)

		if save {
			account.UpdatedAt = time.Now()
			if err := r.persist(ctx, tx, account); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, fnErr
}

func (r *AccountRepository) persist(ctx context.Context, tx pgx.Tx, account *models.Account) error {
	query := `
		UPDATE accounts SET
			email_verified = $2,
			verification_token = $3, verification_token_expiry = $4,
			failed_login_attempts = $5, last_failed_login_at = $6,
			account_locked = $7, account_locked_until = $8, unlock_token = $9,
			two_factor_code = $10, two_factor_code_expiry = $11,
			failed_2fa_attempts = $12, last_failed_2fa_at = $13,
			updated_at = $14
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query,
		account.ID,
		account.EmailVerified,
		account.VerificationToken, account.VerificationTokenExpiry,
		account.FailedLoginAttempts, account.LastFailedLoginAt,
		account.AccountLocked, account.AccountLockedUntil, account.UnlockToken,
		account.TwoFactorCode, account.TwoFactorCodeExpiry,
		account.FailedTwoFactorAttempts, account.LastFailedTwoFactorAt,
		account.UpdatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
