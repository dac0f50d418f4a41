package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
)

// Error writes the error envelope: a human-readable message plus a
// numeric code clients can branch on.
func Error(c *gin.Context, status, code int, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		gin.H{"error": "unauthorized", "code": errcode.Unauthenticated})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, errcode.Unauthenticated, "unauthorized")
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, errcode.InvalidInput, msg)
}

func Forbidden(c *gin.Context, msg string) {
	Error(c, http.StatusForbidden, errcode.AccessDenied, msg)
}

func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, errcode.ResourceMissing, msg)
}

func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, errcode.Duplicate, msg)
}

func Internal(c *gin.Context, msg string) {
	Error(c, http.StatusInternalServerError, errcode.SystemError, msg)
}
