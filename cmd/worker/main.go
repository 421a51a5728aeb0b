package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/log"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/summary"
)

// Worker consumes attendance change messages and refreshes the cached
// section summaries the dashboard reads.
func main() {
	_ = godotenv.Load()
	logger := log.New("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorker(ctx)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("ignoring log level", "err", err)
	}
	logger = log.New("worker")

	db, err := store.NewDB(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable, will keep polling", "addr", cfg.Redis.Addr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	sums := summary.NewRedisStore(redisClient.Client, cfg.SummaryTTL)
	svc := attendance.NewService(attendance.NewRepository(db.Client), nil, log.Child(logger, "attendance"))

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Error("queue consume init failed", "err", err)
		os.Exit(1)
	}

	logger.Info("worker started", "queue", cfg.QueueKey)
	summary.Consume(ctx, logger, messages, sums, svc)
	logger.Info("worker stopped")
}
