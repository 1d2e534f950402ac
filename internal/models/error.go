package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnavailable    = errors.New("service unavailable")

	// Account state machine outcomes. These are expected terminal states of
	// the lifecycle, not exceptional conditions; callers branch on them with
	// errors.Is.
	ErrEmailAlreadyUsed   = errors.New("email is already registered")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrEmailNotVerified   = errors.New("email address not verified")

	// Two-factor challenge outcomes
	ErrNoActiveChallenge = errors.New("no verification code is pending")
	ErrChallengeExpired  = errors.New("verification code has expired")
	ErrChallengeInvalid  = errors.New("verification code is invalid")
)
