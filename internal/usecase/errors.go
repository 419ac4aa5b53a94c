package usecase

import (
	"errors"
)

var (
	// ErrPrincipalNotFound indicates no account matches the supplied email or id.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrInvalidCredentials indicates the password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshTokenRequired indicates the refresh call carried no token.
	ErrRefreshTokenRequired = errors.New("refresh token required")
	// ErrInvalidRefreshToken covers expired, forged, superseded and revoked refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredAccessToken indicates a well-formed access token past its exp.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrInvalidAccessToken indicates an access token that failed verification.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrInvalidOTP indicates the reset code did not match, or no verified challenge exists.
	ErrInvalidOTP = errors.New("incorrect otp")
	// ErrDeliveryFailed indicates the reset code could not be sent. The code stays stored.
	ErrDeliveryFailed = errors.New("reset code delivery failed")
	// ErrStorage wraps failures of the backing stores.
	ErrStorage = errors.New("storage failure")
)

// outcomeOf reduces an operation result to a low-cardinality metric label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPrincipalNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrRefreshTokenRequired),
		errors.Is(err, ErrExpiredAccessToken):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, ErrInvalidAccessToken):
		return "forbidden"
	case errors.Is(err, ErrInvalidOTP):
		return "invalid_otp"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	default:
		return "error"
	}
}
