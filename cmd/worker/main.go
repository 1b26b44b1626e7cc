package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/andres-saa/restaurant-reports/internal/app"
	"github.com/andres-saa/restaurant-reports/internal/assets"
	jobmetrics "github.com/andres-saa/restaurant-reports/internal/jobs"
	"github.com/andres-saa/restaurant-reports/internal/orders"
	"github.com/andres-saa/restaurant-reports/internal/sites"
	"github.com/andres-saa/restaurant-reports/internal/upstream"
	"github.com/andres-saa/restaurant-reports/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	hours, err := cfg.OpeningHours()
	if err != nil {
		logger.Error("parse opening hours", slog.Any("error", err))
		os.Exit(1)
	}

	migrator := assets.NewMigrator(cfg.UploadsDir, logger)
	orderService := orders.NewService(orders.NewRepository(pool), migrator, logger)

	pos := upstream.NewClient(cfg.UpstreamBaseURL, upstream.StaticToken(cfg.UpstreamToken), cfg.UpstreamTimeout)
	siteService := sites.NewService(sites.NewRepository(pool), pos, logger, hours)

	deps := jobs.Deps{
		Orders:  orderService,
		Sites:   siteService,
		POS:     pos,
		Metrics: jobmetrics.NewMetrics(nil),
		Logger:  logger,
	}

	cron, err := jobs.StandingCron(jobs.Schedule{
		OrderPoll:    cfg.OrderPollCron,
		RenameSync:   cfg.RenameSyncCron,
		SitesRefresh: cfg.SitesRefreshCron,
	})
	if err != nil {
		logger.Error("build cron registrations", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Deps:      deps,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
