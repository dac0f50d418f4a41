package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole rejects authenticated requests whose principal lacks one
// of the allowed roles. Unauthenticated requests are already stopped by
// AuthMiddleware, so a missing role here means a wrong role: 403, not
// 401, and no persistence is touched.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		value, ok := c.Get(UserRoleKey)
		if !ok {
			abortUnauthorized(c)
			return
		}
		role, ok := value.(string)
		if !ok || role == "" {
			abortUnauthorized(c)
			return
		}
		if !allowed[role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}
