package models

import (
	"time"
)

// Session is an opaque server-side session token. One active session per
// account: creating a new one displaces any prior session.
type Session struct {
	ID           string
	AccountID    string
	Token        string // Opaque, unguessable, unique
	ExpiresAt    time.Time
	LastActivity time.Time
	CreatedAt    time.Time
}

// Expired reports whether the session is logically dead, whether or not it
// has been physically reaped yet.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
