// Package main provides the orchestrator entry point. The process runs the
// refill loop plus the outcome and notification consumers, and exposes
// Prometheus metrics on a side port.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jobpilot/orchestrator/internal/adapter/correlation/redisstore"
	"github.com/jobpilot/orchestrator/internal/adapter/observability"
	"github.com/jobpilot/orchestrator/internal/adapter/queue/rabbitmq"
	"github.com/jobpilot/orchestrator/internal/adapter/repo/postgres"
	"github.com/jobpilot/orchestrator/internal/config"
	"github.com/jobpilot/orchestrator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), mux); err != nil {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting orchestrator", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	if err := postgres.Migrate(cfg.DBURL); err != nil {
		slog.Error("migrations failed", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Correlation store
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()
	ping := func() error { return redisClient.Ping(ctx).Err() }
	pingBackoff := backoff.NewExponentialBackOff()
	pingBackoff.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(ping, backoff.WithContext(pingBackoff, ctx)); err != nil {
		slog.Error("redis connection failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Message bus
	bus, err := rabbitmq.DialBus(cfg.AMQPURL)
	if err != nil {
		slog.Error("message bus connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = bus.Close() }()

	// Repositories and services
	batchRepo := postgres.NewBatchRepo(pool)
	appRepo := postgres.NewApplicationRepo(pool)
	resumeRepo := postgres.NewResumeRepo(pool)
	registry := usecase.NewCorrelationRegistry(redisstore.New(redisClient))

	admission := usecase.NewAdmissionService(
		batchRepo, resumeRepo, registry, bus, cfg.CareerDocsQueue, cfg.MaxInflight)
	refillLoop := usecase.NewRefillLoop(admission, cfg.RefillPeriod)
	responses := usecase.NewResponseService(batchRepo, appRepo, registry, refillLoop)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		refillLoop.Run(ctx)
	}()

	outcomeConsumer := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.CareerDocsResponseQueue)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := outcomeConsumer.Run(ctx, responses.HandleOutcome); err != nil {
			slog.Error("outcome consumer stopped", slog.Any("error", err))
		}
	}()

	notifyConsumer := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.ApplicationManagerQueue)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := notifyConsumer.Run(ctx, refillLoop.HandleNotification); err != nil {
			slog.Error("notification consumer stopped", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("orchestrator stopped")
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("shutdown timeout exceeded, exiting")
	}
}
