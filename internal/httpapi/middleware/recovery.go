package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/ai-chat-assistant/internal/common"
)

// Recovery turns panics into a structured 500 instead of gin's default page.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered path=%s err=%v", c.FullPath(), r)
				if !c.Writer.Written() {
					common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
