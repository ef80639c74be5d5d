package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/lumeo-ai/studio/internal/chat"
	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/generation"
	"github.com/lumeo-ai/studio/internal/server"
	"github.com/lumeo-ai/studio/internal/session"
	"github.com/lumeo-ai/studio/internal/storage"
	"github.com/lumeo-ai/studio/internal/store"
	"github.com/lumeo-ai/studio/internal/supabase"
	"github.com/lumeo-ai/studio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auth := supabase.NewAuth(cfg)
	data := supabase.NewClient(cfg, logr)

	sessions := session.NewStore(data, logr, cfg.HistoryLimit)

	apiClient := generation.NewClient(cfg, logr)
	flow := generation.NewFlow(logr, apiClient, sessions)

	storeSvc := store.NewService(cfg, logr)
	chatClient := chat.NewClient(cfg, logr)

	var uploader *storage.Uploader
	if cfg.ShareEnabled() {
		uploader, err = storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
	}

	srv := server.NewServer(cfg, logr, auth, data, sessions, flow, storeSvc, chatClient, uploader)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
