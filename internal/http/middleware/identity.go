package middleware

import (
	"strings"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/http/httperror"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the caller's identity. Issuing and checking sessions
// happens in front of this service.
const UserHeader = "X-User-ID"

const userKey = "user_id"

// RequireUser rejects requests that do not name a caller.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserHeader))
		if id == "" {
			httperror.Write(c, auctionerr.Invalid("%s header is required", UserHeader))
			return
		}
		c.Set(userKey, id)
		c.Next()
	}
}

// UserID returns the caller set by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userKey)
}
