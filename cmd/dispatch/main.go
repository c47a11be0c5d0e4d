// Package main provides the dispatch command. It submits a user's assembled
// applications to the applier queues, either all pending ones or a named
// selection.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/jobpilot/orchestrator/internal/adapter/observability"
	"github.com/jobpilot/orchestrator/internal/adapter/queue/rabbitmq"
	"github.com/jobpilot/orchestrator/internal/adapter/repo/postgres"
	"github.com/jobpilot/orchestrator/internal/config"
	"github.com/jobpilot/orchestrator/internal/domain"
	"github.com/jobpilot/orchestrator/internal/usecase"
)

func main() {
	userID := flag.Int64("user", 0, "user whose applications to submit (required)")
	ids := flag.String("ids", "", "comma-separated application ids; empty submits all pending")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	if *userID <= 0 {
		slog.Error("missing -user flag")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	bus, err := rabbitmq.DialBus(cfg.AMQPURL)
	if err != nil {
		slog.Error("message bus connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = bus.Close() }()

	portals, err := config.ProviderPortals(cfg.PortalsFile)
	if err != nil {
		slog.Error("portal set load failed", slog.Any("error", err))
		os.Exit(1)
	}
	router := usecase.PortalRouter{
		ProviderPortals:  portals,
		ProvidersQueue:   cfg.ProvidersQueue,
		SkyvernQueue:     cfg.SkyvernQueue,
		ProvidersEnabled: cfg.ProvidersEnabled,
		SkyvernEnabled:   cfg.SkyvernEnabled,
	}
	svc := usecase.NewDispatchService(postgres.NewApplicationRepo(pool), bus, router)

	var res usecase.DispatchResult
	if *ids == "" {
		res, err = svc.SubmitAll(ctx, *userID)
	} else {
		selection := strings.Split(*ids, ",")
		for i := range selection {
			selection[i] = strings.TrimSpace(selection[i])
		}
		res, err = svc.SubmitSelected(ctx, *userID, selection)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Info("nothing to submit", slog.Int64("user_id", *userID))
			return
		}
		slog.Error("dispatch failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("dispatch complete",
		slog.Int64("user_id", *userID),
		slog.Int("submitted", res.Submitted),
		slog.Int("dropped", res.Dropped),
		slog.Any("submitted_ids", res.SubmittedIDs))
}
