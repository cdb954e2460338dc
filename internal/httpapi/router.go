package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumenchat/ai-chat-assistant/internal/auth"
	"github.com/lumenchat/ai-chat-assistant/internal/common"
	"github.com/lumenchat/ai-chat-assistant/internal/config"
	"github.com/lumenchat/ai-chat-assistant/internal/httpapi/handlers"
	"github.com/lumenchat/ai-chat-assistant/internal/httpapi/middleware"
	"github.com/lumenchat/ai-chat-assistant/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, tokens *auth.TokenStore, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, tokens, rabbit)

	r.GET("/ping", func(c *gin.Context) { common.OK(c, gin.H{"message": "pong"}) })

	// static assets and pages, when shipped alongside the binary
	if st, err := os.Stat(cfg.StaticDir); err == nil && st.IsDir() {
		r.Static("/static", cfg.StaticDir)
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticDir, "index.html"))
		})
		r.GET("/admin", func(c *gin.Context) {
			c.File(filepath.Join(cfg.StaticDir, "admin.html"))
		})
	}

	api := r.Group("/api")

	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.GET("/models", h.ListModels)

	authed := api.Group("/")
	authed.Use(middleware.AuthRequired(tokens))
	authed.POST("/logout", h.Logout)
	authed.GET("/user/info", h.UserInfo)
	authed.POST("/user/avatar", h.UploadAvatar)

	authed.POST("/chat/stream", h.ChatStream)
	authed.GET("/chat/history", h.ChatHistory)
	authed.POST("/chat/history/date-range", h.ChatHistoryByDateRange)
	authed.DELETE("/chat/session/:session_id", h.DeleteChatSession)
	authed.POST("/chat/messages/async", h.SendChatMessageAsync)
	authed.GET("/chat/jobs/:job_id", h.GetChatJob)

	admin := authed.Group("/admin")
	admin.Use(middleware.AdminRequired(db))
	admin.GET("/check", h.AdminCheck)
	admin.GET("/providers", h.AdminListProviders)
	admin.POST("/providers", h.AdminCreateProvider)
	admin.PUT("/providers/:provider_id", h.AdminUpdateProvider)
	admin.DELETE("/providers/:provider_id", h.AdminDeleteProvider)
	admin.GET("/models", h.AdminListModels)
	admin.POST("/models", h.AdminCreateModel)
	admin.PUT("/models/:model_id", h.AdminUpdateModel)
	admin.DELETE("/models/:model_id", h.AdminDeleteModel)
	admin.GET("/users", h.AdminListUsers)
	admin.PUT("/users/:user_id", h.AdminUpdateUser)
	admin.DELETE("/users/:user_id", h.AdminDeleteUser)

	return r
}
