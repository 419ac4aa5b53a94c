package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/moodwell/internal/usecase"
)

// PasswordHandler exposes the forgot / verify / reset flow.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
}

func NewPasswordHandler(reset *usecase.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{reset: reset}
}

func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid forgot password payload")
		return
	}

	if err := h.reset.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		RespondWithMappedError(c, err, forgotPasswordErrors, internalError)
		return
	}
	c.JSON(http.StatusOK, "OTP sent successfully")
}

func (h *PasswordHandler) VerifyOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid verify otp payload")
		return
	}

	if err := h.reset.VerifyOtp(c.Request.Context(), req.Email, string(req.Code)); err != nil {
		RespondWithMappedError(c, err, verifyOtpErrors, internalError)
		return
	}
	c.JSON(http.StatusOK, "OTP verified successfully")
}

func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid reset password payload")
		return
	}

	if err := h.reset.ResetPassword(c.Request.Context(), req.Email, req.Password); err != nil {
		RespondWithMappedError(c, err, resetPasswordErrors, internalError)
		return
	}
	c.JSON(http.StatusOK, "Successfully changed")
}
