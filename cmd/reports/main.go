package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/andres-saa/restaurant-reports/internal/app"
	"github.com/andres-saa/restaurant-reports/internal/appeals"
	"github.com/andres-saa/restaurant-reports/internal/assets"
	"github.com/andres-saa/restaurant-reports/internal/notify"
	"github.com/andres-saa/restaurant-reports/internal/observability"
	"github.com/andres-saa/restaurant-reports/internal/orders"
	"github.com/andres-saa/restaurant-reports/internal/reporting"
	"github.com/andres-saa/restaurant-reports/internal/sites"
	"github.com/andres-saa/restaurant-reports/internal/upstream"
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
	orderHandler := orders.NewHandler(logger, orderService)

	notifier := notify.NewPublisher(redisClient, logger)
	appealService := appeals.NewService(appeals.NewRepository(pool), notifier, logger,
		appeals.Config{GracePeriod: cfg.GracePeriod()})
	appealHandler := appeals.NewHandler(logger, appealService)

	pos := upstream.NewClient(cfg.UpstreamBaseURL, upstream.StaticToken(cfg.UpstreamToken), cfg.UpstreamTimeout)
	siteService := sites.NewService(sites.NewRepository(pool), pos, logger, hours)
	siteHandler := sites.NewHandler(logger, siteService)

	reportService := reporting.NewService(orderService, appealService)
	reportHandler := reporting.NewHandler(logger, reportService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		OrdersHandler:    orderHandler,
		AppealsHandler:   appealHandler,
		SitesHandler:     siteHandler,
		ReportingHandler: reportHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
