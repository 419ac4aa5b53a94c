package domain

import (
	"errors"
	"time"
)

// TokenPair is returned by a successful login. Only the refresh half is persisted,
// on the principal record.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenSubject is what a verified token asserts about its bearer.
type TokenSubject struct {
	PrincipalID string
	Email       string
	Role        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

var (
	// ErrTokenExpired reports a well-formed token whose exp has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenInvalid covers bad signatures, malformed input and wrong token kinds.
	ErrTokenInvalid = errors.New("token: invalid")
)
