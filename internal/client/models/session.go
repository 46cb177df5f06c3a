package models

import "time"

// Session is the authenticated in-memory context created by a successful
// login. It is never persisted.
type Session struct {
	// ID identifies the session in logs.
	ID string
	// Role is the authenticated participant.
	Role Role
	// KeyRef is an opaque, non-secret reference to the session key.
	KeyRef string
	// CreatedAt is when the login succeeded.
	CreatedAt time.Time
}
