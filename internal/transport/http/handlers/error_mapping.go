package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/moodwell/internal/transport/http/middleware"
	"github.com/arklim/moodwell/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status, kind and message.
type ErrorCase struct {
	Err     error
	Status  int
	Kind    string
	Message string
}

var internalError = ErrorCase{Status: http.StatusInternalServerError, Kind: KindStorageError, Message: "Internal server error"}

// RespondWithMappedError writes the first case matching err, or fallback.
// Server side failures are attached to the gin context for the access log.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallback ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	match := fallback
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			match = cs
			break
		}
	}

	if match.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(match.Status, middleware.NewErrorResponse(c, match.Kind, match.Message))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, middleware.NewErrorResponse(c, KindBadRequest, message))
}

var (
	loginErrors = []ErrorCase{
		{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Kind: KindNotFound, Message: "No email exists"},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Kind: KindUnauthorized, Message: "The password is incorrect"},
	}
	meErrors = []ErrorCase{
		{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Kind: KindNotFound, Message: "User not found"},
	}
	refreshErrors = []ErrorCase{
		{Err: usecase.ErrRefreshTokenRequired, Status: http.StatusUnauthorized, Kind: KindUnauthorized, Message: "Refresh token required"},
		{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusForbidden, Kind: KindForbidden, Message: "Invalid refresh token"},
	}
	forgotPasswordErrors = []ErrorCase{
		{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Kind: KindNotFound, Message: "Incorrect email"},
		{Err: usecase.ErrDeliveryFailed, Status: http.StatusInternalServerError, Kind: KindDeliveryFailed, Message: "Error sending email"},
	}
	verifyOtpErrors = []ErrorCase{
		{Err: usecase.ErrInvalidOTP, Status: http.StatusBadRequest, Kind: KindInvalidOtp, Message: "Incorrect OTP"},
	}
	resetPasswordErrors = []ErrorCase{
		{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Kind: KindNotFound, Message: "Incorrect email"},
		{Err: usecase.ErrInvalidOTP, Status: http.StatusBadRequest, Kind: KindInvalidOtp, Message: "OTP verification required"},
	}
)
