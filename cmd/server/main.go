package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumenchat/ai-chat-assistant/internal/auth"
	"github.com/lumenchat/ai-chat-assistant/internal/config"
	"github.com/lumenchat/ai-chat-assistant/internal/db"
	"github.com/lumenchat/ai-chat-assistant/internal/httpapi"
	"github.com/lumenchat/ai-chat-assistant/internal/store/rabbitmq"
	"github.com/lumenchat/ai-chat-assistant/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	var revoker auth.Revoker = rds
	if err := rds.Ping(context.Background()); err != nil {
		log.Printf("redis unreachable, token revocation disabled err=%v", err)
		revoker = nil
	}

	tokens := auth.NewTokenStore(cfg.JWTSecret, time.Duration(cfg.TokenTTLH)*time.Hour, revoker)

	var rabbit *rabbitmq.Publisher
	if p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Printf("rabbit unreachable, async chat disabled err=%v", err)
	} else {
		rabbit = p
		defer rabbit.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, tokens, rabbit)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("server listening addr=%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
