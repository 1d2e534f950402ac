package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remix/authcore/internal/database"
	"github.com/remix/authcore/internal/models"
)

type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, account_id, token, expires_at, last_activity, created_at`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session

	err := scanner.Scan(
		&s.ID, &s.AccountID, &s.Token, &s.ExpiresAt, &s.LastActivity, &s.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()
	session.CreatedAt = time.Now()

	query := `
		INSERT INTO sessions (id, account_id, token, expires_at, last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + sessionColumns

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query,
		session.ID, session.AccountID, session.Token,
		session.ExpiresAt, session.LastActivity, session.CreatedAt,
	))
}

// DeleteByAccountID removes every session an account owns. Used when a new
// login displaces the old session.
func (r *SessionRepository) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteByToken removes a session if present. Absence is not an error.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// Slide pushes the expiry window forward for a live session. The expiry guard
// in the WHERE clause plus the row lock the UPDATE takes make the
// read-then-extend race impossible: an expired session never slides.
func (r *SessionRepository) Slide(ctx context.Context, token string, now, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE sessions SET last_activity = $2, expires_at = $3
		WHERE token = $1 AND expires_at > $2
	`

	result, err := r.db.Pool.Exec(ctx, query, token, now, expiresAt)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteIfExpired reaps a single session that has passed its expiry. The guard
// keeps a concurrent slide from losing a freshly-extended session.
func (r *SessionRepository) DeleteIfExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	query := `DELETE FROM sessions WHERE token = $1 AND expires_at <= $2`

	result, err := r.db.Pool.Exec(ctx, query, token, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteExpired removes all sessions that are past expiry or idle since
// before staleBefore. Safety net behind the lazy reap in validation.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1 OR last_activity < $2`

	result, err := r.db.Pool.Exec(ctx, query, now, staleBefore)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
