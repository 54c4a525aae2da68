package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fitsbook-server/internal/auth"
)

const (
	userIDContextKey = "userID"
	// UserIDHeader names the header carrying the caller's numeric user id.
	UserIDHeader = "X-User-Id"
)

// TokenValidator checks a bearer token against the user it claims to belong to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, userID int64, token string) (bool, error)
}

func UserIDFromContext(c *gin.Context) (int64, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	value, ok := userID.(int64)
	return value, ok && value != 0
}

// RequireToken rejects requests that lack a live token for the user named
// in X-User-Id.
func RequireToken(v TokenValidator) gin.HandlerFunc {
	logger := log.WithField("component", "auth")
	return func(c *gin.Context) {
		token, err := auth.ParseBearer(c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c)
			return
		}
		userID, err := strconv.ParseInt(c.GetHeader(UserIDHeader), 10, 64)
		if err != nil || userID <= 0 {
			unauthorized(c)
			return
		}

		ok, err := v.ValidateToken(c.Request.Context(), userID, token)
		if err != nil {
			logger.WithError(err).Error("token validation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			c.Abort()
			return
		}
		if !ok {
			unauthorized(c)
			return
		}

		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
	c.Abort()
}

// Optional returns mw when enabled and a pass-through otherwise.
func Optional(enabled bool, mw gin.HandlerFunc) gin.HandlerFunc {
	if enabled {
		return mw
	}
	return func(c *gin.Context) { c.Next() }
}
