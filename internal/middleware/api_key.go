package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "finsight/internal/errors"
)

// APIKeyHeader carries the client's API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth validates the X-API-Key header against the configured key. With
// no key configured every request is refused with 503.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithError(c, apperrors.ErrAPINotConfigured)
			return
		}
		key := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, e *apperrors.AppError) {
	c.AbortWithStatusJSON(e.StatusCode, gin.H{"error": gin.H{"code": e.Code, "message": e.Message}})
}
