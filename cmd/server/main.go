package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/ai"
	"github.com/david/bid-matcher/internal/api"
	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/kb"
	"github.com/david/bid-matcher/internal/logger"
	"github.com/david/bid-matcher/internal/queue"
	"github.com/david/bid-matcher/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	objects, err := store.NewObjectStorage(ctx, cfg.MinIO, zlog)
	if err != nil {
		zlog.Fatal("object storage init failed", zap.Error(err))
	}

	pool, err := kb.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		zlog.Fatal("knowledge base connection failed", zap.Error(err))
	}
	defer pool.Close()
	if err := kb.ApplyMigrations(ctx, pool, zlog); err != nil {
		zlog.Fatal("knowledge base migration failed", zap.Error(err))
	}

	mq, err := queue.Connect(cfg.RabbitMQ, zlog)
	if err != nil {
		zlog.Fatal("rabbitmq connection failed", zap.Error(err))
	}
	defer mq.Close()

	llm := ai.NewClient(cfg.OpenAI, zlog)
	capabilities := kb.NewStore(pool, llm, zlog)

	srv := api.NewServer(cfg.Server, objects, mq, capabilities, zlog)
	zlog.Info("ops server starting", zap.String("port", cfg.Server.Port))
	if err := srv.Start(cfg.Server.Port); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
