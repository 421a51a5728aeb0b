package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"qrattend/internal/api"
	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/log"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/summary"
)

func main() {
	_ = godotenv.Load()
	logger := log.New("api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPI(ctx)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("ignoring log level", "err", err)
	}
	logger = log.New("api")
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(log.IntoContext(ctx, logger), cfg); err != nil {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.API) error {
	logger := log.FromContext(ctx)

	db, err := store.NewDB(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	if cfg.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
	}

	if cfg.SummaryBackend == "memory" && cfg.QueueBackend != "memory" {
		return errors.New("SUMMARY_BACKEND=memory requires QUEUE_BACKEND=memory")
	}

	redisClient := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	checks := map[string]func(context.Context) bool{"db": db.Healthy}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
		checks["redis"] = redisClient.Healthy
	}

	var sums summary.Store
	if cfg.SummaryBackend == "memory" {
		sums = summary.NewMemoryStore()
	} else {
		sums = summary.NewRedisStore(redisClient.Client, cfg.SummaryTTL)
		checks["redis"] = redisClient.Healthy
	}

	svc := attendance.NewService(repo, q, log.Child(logger, "attendance"))

	// With the in-memory queue no worker can see the change events, so the
	// API refreshes summaries itself.
	if mq, ok := q.(*queue.InMemory); ok {
		msgs, err := mq.Consume(ctx)
		if err != nil {
			return err
		}
		go summary.Consume(ctx, log.Child(logger, "summary"), msgs, sums, svc)
	}

	r := api.NewRouter(api.Config{
		JWTIssuer:       cfg.JWTIssuer,
		JWTSigningKey:   cfg.JWTSigningKey,
		AdminKey:        cfg.AdminKey,
		AccessTTL:       cfg.AccessTTL,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}, api.Deps{
		Service:   svc,
		Summaries: sums,
		Checks:    checks,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "driver", cfg.Database.Driver, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "err", err)
	}
	logger.Info("server exited")
	return nil
}
