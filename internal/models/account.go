package models

import (
	"time"
)

// AccountMutator runs against an account held under a row lock. It returns
// whether the mutated account should be persisted; its error is propagated to
// the caller after any persist, so counter bumps survive failed outcomes.
type AccountMutator func(a *Account) (save bool, err error)

type Account struct {
	ID                      string
	Email                   string
	PasswordHash            string // Never serialized or logged
	EmailVerified           bool
	VerificationToken       *string
	VerificationTokenExpiry *time.Time
	FailedLoginAttempts     int
	LastFailedLoginAt       *time.Time
	AccountLocked           bool
	AccountLockedUntil      *time.Time
	UnlockToken             *string
	TwoFactorCode           *string
	TwoFactorCodeExpiry     *time.Time
	FailedTwoFactorAttempts int
	LastFailedTwoFactorAt   *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// LockExpired reports whether an active lock has run out its clock.
// The account stays locked until a caller observes this and clears the lock.
func (a *Account) LockExpired(now time.Time) bool {
	return a.AccountLocked && a.AccountLockedUntil != nil && now.After(*a.AccountLockedUntil)
}

// Locked reports whether the lock is currently in force.
func (a *Account) Locked(now time.Time) bool {
	return a.AccountLocked && !a.LockExpired(now)
}

// HasPendingChallenge reports whether a two-factor code is awaiting verification.
func (a *Account) HasPendingChallenge() bool {
	return a.TwoFactorCode != nil && a.TwoFactorCodeExpiry != nil
}

// ChallengeExpired reports whether the pending two-factor code is past its expiry.
func (a *Account) ChallengeExpired(now time.Time) bool {
	return a.HasPendingChallenge() && now.After(*a.TwoFactorCodeExpiry)
}

// VerificationExpired reports whether the pending verification token is past its expiry.
func (a *Account) VerificationExpired(now time.Time) bool {
	return a.VerificationTokenExpiry != nil && now.After(*a.VerificationTokenExpiry)
}
