package api

import (
	"github.com/gin-gonic/gin"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/api/middleware"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func roleFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get(middleware.UserRoleKey)
	if !exists {
		return "", false
	}
	role, ok := value.(string)
	return role, ok && role != ""
}
