package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/transport/http/middleware"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse = middleware.ErrorResponse

// Error kinds carried in ErrorResponse.Kind.
const (
	KindNotFound       = "NotFound"
	KindUnauthorized   = "Unauthorized"
	KindForbidden      = "Forbidden"
	KindConflict       = "Conflict"
	KindInvalidOtp     = "InvalidOtp"
	KindDeliveryFailed = "DeliveryFailed"
	KindStorageError   = "StorageError"
	KindBadRequest     = "BadRequest"
	KindRateLimited    = "RateLimited"
)

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Message      string                 `json:"message"`
	AccessToken  string                 `json:"accessToken"`
	RefreshToken string                 `json:"refreshToken"`
	User         domain.PublicPrincipal `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type VerifyOtpRequest struct {
	Email string  `json:"email" binding:"required"`
	Code  OTPCode `json:"code" binding:"required"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// OTPCode accepts the reset code as a JSON string or a JSON number.
type OTPCode string

func (c *OTPCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = OTPCode(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("otp code must be a string or number: %w", err)
	}
	*c = OTPCode(n.String())
	return nil
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
