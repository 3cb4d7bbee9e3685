package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/internal/services"
	"github.com/huangang/tokengate/pkg/logger"
)

const (
	ContextUserID    = "user_id"
	ContextAuthToken = "auth_token"
)

// TokenAuthRequired verifies the opaque bearer credential in the
// Authorization header ("<prefix> <credential>", prefix "Token" by default).
//
// Every failure — malformed, unknown, digest mismatch, expired — produces the
// same 401 body, so the response is not an oracle for which stage rejected
// the credential. The distinction is logged internally.
func TokenAuthRequired(tokens *services.TokenService, headerPrefix string) gin.HandlerFunc {
	if headerPrefix == "" {
		headerPrefix = "Token"
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != headerPrefix {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		userID, record, err := tokens.Verify(parts[1])
		if err != nil {
			if services.IsVerifyFailure(err) {
				logger.Debug().Err(err).Str("ip", c.ClientIP()).Msg("token rejected")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			} else {
				logger.Error().Err(err).Msg("token verification failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication temporarily unavailable"})
			}
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextAuthToken, record)

		c.Next()
	}
}

// AdminRequired checks that the authenticated user has the admin role. Must
// run after TokenAuthRequired.
func AdminRequired(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.GetUserByID(GetUserID(c))
		if err != nil || user.Role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetAuthToken gets the token record the request authenticated with.
func GetAuthToken(c *gin.Context) *models.AuthToken {
	if record, exists := c.Get(ContextAuthToken); exists {
		return record.(*models.AuthToken)
	}
	return nil
}
