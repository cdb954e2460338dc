package handlers

import (
	"time"

	"gorm.io/gorm"

	"github.com/lumenchat/ai-chat-assistant/internal/ai"
	"github.com/lumenchat/ai-chat-assistant/internal/auth"
	"github.com/lumenchat/ai-chat-assistant/internal/chat"
	"github.com/lumenchat/ai-chat-assistant/internal/config"
	"github.com/lumenchat/ai-chat-assistant/internal/registry"
	"github.com/lumenchat/ai-chat-assistant/internal/store/rabbitmq"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Tokens   *auth.TokenStore
	Registry *registry.Repo
	ChatRepo *chat.Repo
	ChatSvc  *chat.Service

	// Rabbit is nil when the async path is disabled.
	Rabbit *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, tokens *auth.TokenStore, rabbit *rabbitmq.Publisher) *Handler {
	regRepo := registry.NewRepo(db)
	chatRepo := chat.NewRepo(db)
	client := ai.NewClient(time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second)
	chatSvc := chat.NewService(chatRepo, regRepo, client, cfg.ChatContextWindowSize)

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Tokens:   tokens,
		Registry: regRepo,
		ChatRepo: chatRepo,
		ChatSvc:  chatSvc,
		Rabbit:   rabbit,
	}
}
