package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/infra/logger"
	"github.com/arklim/moodwell/internal/usecase"
)

// AccessTokenParser verifies bearer access tokens.
type AccessTokenParser interface {
	ParseAccessToken(token string) (domain.TokenSubject, error)
}

// RequireAccessToken authenticates the bearer access token. A missing or
// expired token yields 401, any other verification failure 403.
func RequireAccessToken(parser AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "Unauthorized", "access token required"))
			return
		}

		subject, err := parser.ParseAccessToken(token)
		if err != nil {
			logger.WithContext(c.Request.Context()).Debug("access token rejected",
				zap.String("token", logger.MaskToken(token)),
				zap.Error(err),
			)
			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					NewErrorResponse(c, "Unauthorized", "access token expired"))
			case errors.Is(err, usecase.ErrInvalidAccessToken):
				c.AbortWithStatusJSON(http.StatusForbidden,
					NewErrorResponse(c, "Forbidden", "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					NewErrorResponse(c, "StorageError", "authentication failed"))
			}
			return
		}

		c.Set(PrincipalIDKey, subject.PrincipalID)
		c.Set(SubjectKey, subject)
		GetRequestContext(c).PrincipalID = subject.PrincipalID

		c.Next()
	}
}

// bearerToken accepts "Bearer <token>" with any casing of the scheme.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetPrincipalID returns the id set by RequireAccessToken.
func GetPrincipalID(c *gin.Context) (string, bool) {
	value, exists := c.Get(PrincipalIDKey)
	if !exists {
		return "", false
	}
	id, ok := value.(string)
	return id, ok && id != ""
}
