package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/moodwell/internal/transport/http/middleware"
	"github.com/arklim/moodwell/internal/usecase"
)

// AuthHandler exposes signup, login, session and profile endpoints.
type AuthHandler struct {
	identity *usecase.IdentityService
}

func NewAuthHandler(identity *usecase.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// Signup answers "Success" without touching the account when the email is
// already registered.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid signup payload")
		return
	}

	result, err := h.identity.Signup(c.Request.Context(), usecase.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		RespondWithMappedError(c, err, nil, internalError)
		return
	}

	if result.Existing {
		c.JSON(http.StatusOK, "Success")
		return
	}
	c.JSON(http.StatusOK, result.Principal)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid login payload")
		return
	}

	result, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, loginErrors, internalError)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message:      "Login successful",
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		User:         result.Principal,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	principalID, _ := middleware.GetPrincipalID(c)

	principal, err := h.identity.GetSelf(c.Request.Context(), principalID)
	if err != nil {
		RespondWithMappedError(c, err, meErrors, internalError)
		return
	}
	c.JSON(http.StatusOK, principal)
}

// Refresh tolerates an empty or malformed body and lets the service reject
// the missing token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	_ = c.ShouldBindJSON(&req)

	access, err := h.identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, refreshErrors, internalError)
		return
	}
	c.JSON(http.StatusOK, RefreshResponse{AccessToken: access})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	principalID, _ := middleware.GetPrincipalID(c)

	if err := h.identity.Logout(c.Request.Context(), principalID); err != nil {
		RespondWithMappedError(c, err, nil, internalError)
		return
	}
	c.JSON(http.StatusOK, "Logged out successfully")
}
