package models

import "time"

// Session binds an opaque token to an identifier and a role snapshot for a
// fixed time window. The token is the lookup key and is never logged in full.
type Session struct {
	Identifier string    `json:"identifier"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session's window has passed
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
