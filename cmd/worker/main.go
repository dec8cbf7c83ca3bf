package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/ai"
	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/kb"
	"github.com/david/bid-matcher/internal/logger"
	"github.com/david/bid-matcher/internal/pipeline"
	"github.com/david/bid-matcher/internal/queue"
	"github.com/david/bid-matcher/internal/retry"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		Multiplier:  2.0,
		Logger:      zlog,
	}

	p := pipeline.New(
		pipeline.NewLoader(objects, cfg.Matcher.MaxAttachments, cfg.Matcher.MaxDescriptionChars, cfg.Matcher.MaxAttachmentChars, zlog),
		pipeline.NewExtractor(llm, cfg.OpenAI.ExtractModel, policy, zlog),
		pipeline.NewRetriever(capabilities, cfg.Matcher.TopNEvidence, policy, zlog),
		pipeline.NewScorer(llm, cfg.OpenAI.ScoreModel, policy, zlog),
		pipeline.NewClassifier(objects, cfg.Matcher.Threshold, zlog),
		cfg.InterCallDelay(),
		zlog,
	)

	zlog.Info("match worker starting",
		zap.Float64("threshold", cfg.Matcher.Threshold),
		zap.Int("concurrency", cfg.Matcher.Concurrency),
	)

	err = mq.Consume(ctx, cfg.Matcher.Concurrency, func(ctx context.Context, req queue.MatchRequest) error {
		runCtx, cancel := context.WithTimeout(ctx, cfg.RecordTimeout())
		defer cancel()
		_, err := p.Process(runCtx, req.RecordID, req.RecordKey)
		return err
	})
	if err != nil && ctx.Err() == nil {
		zlog.Fatal("consumer stopped", zap.Error(err))
	}
	zlog.Info("match worker shut down")
}
