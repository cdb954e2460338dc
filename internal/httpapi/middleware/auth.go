package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumenchat/ai-chat-assistant/internal/auth"
	"github.com/lumenchat/ai-chat-assistant/internal/common"
	"github.com/lumenchat/ai-chat-assistant/internal/models"
)

const (
	UserIDKey = "user_id"

	// TokenCookie is how the browser client carries its session token.
	TokenCookie = "token"
)

// TokenFromRequest accepts the session cookie or a bearer header.
func TokenFromRequest(c *gin.Context) string {
	if v, err := c.Cookie(TokenCookie); err == nil && v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// AuthRequired maps the opaque token to a user id and stores it on the
// request context.
func AuthRequired(tokens *auth.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "not logged in")
			c.Abort()
			return
		}
		uid, err := tokens.Verify(token)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// AdminRequired loads the caller's admin flag from the database on every
// request; the flag can be flipped by another admin at any time, so it is
// never cached on the token.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(UserIDKey)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40101, "not logged in")
			c.Abort()
			return
		}
		uid, _ := v.(uint64)

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
			common.Fail(c, http.StatusForbidden, 40301, "admin privileges required")
			c.Abort()
			return
		}
		if user.IsAdmin != 1 || user.Status != models.StatusEnabled {
			common.Fail(c, http.StatusForbidden, 40301, "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}
