package domain

import "time"

// PrincipalRegisteredEvent is emitted once a new account has been persisted.
type PrincipalRegisteredEvent struct {
	EventID      string
	PrincipalID  string
	Email        string
	Role         string
	RegisteredAt time.Time
}

// PasswordResetRequestedEvent is emitted after a reset code has been issued and handed to
// the notifier. The code itself is never part of the event.
type PasswordResetRequestedEvent struct {
	EventID           string
	PrincipalID       string
	MaskedDestination string
	Delivered         bool
	RequestedAt       time.Time
	ExpiresAt         *time.Time
}

// PasswordChangedEvent is emitted after a password has been replaced through the reset flow.
type PasswordChangedEvent struct {
	EventID     string
	PrincipalID string
	ChangedAt   time.Time
	OTPVerified bool
}
