package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperbrief/internal/audit"
	"github.com/xxxsen/paperbrief/internal/pkg/errcode"
	"github.com/xxxsen/paperbrief/internal/pkg/jwt"
	"github.com/xxxsen/paperbrief/internal/pkg/response"
)

const ContextUserIDKey = "user_id"

// OptionalJWTAuth resolves the caller identity when a bearer token is sent
// and threads it into the request context for audit attribution. Anonymous
// requests pass through; a malformed or invalid token does not.
func OptionalJWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(audit.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// JWTAuth is the strict variant used on admin routes.
func JWTAuth(secret []byte) gin.HandlerFunc {
	optional := OptionalJWTAuth(secret)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		optional(c)
	}
}
