// Package auth provides request authentication middleware.
package auth

import (
	"crypto/hmac"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAdminSecret carries the administrator secret.
	HeaderAdminSecret = "X-Admin-Secret"

	// ContextKeyAdmin marks a request as authenticated admin in gin context.
	ContextKeyAdmin = "authAdmin"
)

// AdminRequired rejects requests that do not carry the admin secret.
// Comparison is constant-time so the secret cannot be probed byte by byte.
func AdminRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured.",
			})
			return
		}

		supplied := c.GetHeader(HeaderAdminSecret)
		if supplied == "" || !hmac.Equal([]byte(supplied), []byte(secret)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Valid " + HeaderAdminSecret + " header required.",
			})
			return
		}

		c.Set(ContextKeyAdmin, true)
		c.Next()
	}
}

// IsAdmin reports whether the request passed AdminRequired.
func IsAdmin(c *gin.Context) bool {
	v, exists := c.Get(ContextKeyAdmin)
	if !exists {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
