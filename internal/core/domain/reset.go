package domain

import "time"

// ResetChallenge is the pending one-time code for a password reset. A zero
// ExpiresAt means the challenge lives until it is overwritten or deleted.
type ResetChallenge struct {
	Email     string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Verified  bool
}

// Expired reports whether the challenge has passed its deadline at now.
func (c ResetChallenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
