// Package control mounts the operator HTTP control plane under a single
// gin.Engine. Middleware keeps the same security headers and
// bearer-token gate shape, generalized to treat an unconfigured operator
// credential as auth-disabled rather than a startup requirement.
package control

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studiocommand/engine/internal/auth"
)

// SecurityHeadersMiddleware adds standard HTTP security headers to every
// response.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Header("Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; media-src 'self'; connect-src 'self'; font-src 'self'")
		c.Next()
	}
}

// AuthRequired enforces JWT authentication via Authorization: Bearer
// <token>. If a is nil (no operator credentials configured), it is a
// no-op — the engine is then unauthenticated by design, matching
// single-operator LAN deployments.
func AuthRequired(a *auth.Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(401, gin.H{"ok": false, "error": "authentication required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(401, gin.H{"ok": false, "error": "authentication required"})
			return
		}

		token := strings.TrimSpace(parts[1])
		if _, err := a.ValidateToken(token); err != nil {
			c.AbortWithStatusJSON(401, gin.H{"ok": false, "error": "invalid or expired token"})
			return
		}

		c.Next()
	}
}
