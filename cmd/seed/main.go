// Package main provides the seed command. It loads pending batches from a
// YAML file into the database, standing in for the intake service during
// development.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/jobpilot/orchestrator/internal/adapter/observability"
	"github.com/jobpilot/orchestrator/internal/adapter/repo/postgres"
	"github.com/jobpilot/orchestrator/internal/config"
	"github.com/jobpilot/orchestrator/internal/domain"
)

const defaultRetries = 3

type seedFile struct {
	Batches []seedBatch `yaml:"batches"`
}

type seedBatch struct {
	UserID int64     `yaml:"user_id"`
	CVID   string    `yaml:"cv_id"`
	Style  string    `yaml:"style"`
	Jobs   []seedJob `yaml:"jobs"`
}

type seedJob struct {
	Portal      string `yaml:"portal"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	ApplyLink   string `yaml:"apply_link"`
	CompanyName string `yaml:"company_name"`
	Location    string `yaml:"location"`
}

func main() {
	file := flag.String("file", "seed.yaml", "YAML file of batches to load")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	raw, err := os.ReadFile(*file)
	if err != nil {
		slog.Error("seed file read failed", slog.Any("error", err))
		os.Exit(1)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		slog.Error("seed file parse failed", slog.Any("error", err))
		os.Exit(1)
	}
	if len(seed.Batches) == 0 {
		slog.Error("seed file has no batches", slog.String("file", *file))
		os.Exit(1)
	}

	ctx := context.Background()
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

	repo := postgres.NewBatchRepo(pool)
	for _, sb := range seed.Batches {
		jobs := make([]domain.Job, len(sb.Jobs))
		for i, sj := range sb.Jobs {
			jobs[i] = domain.Job{
				Portal:      sj.Portal,
				Title:       sj.Title,
				Description: sj.Description,
				ApplyLink:   sj.ApplyLink,
				CompanyName: sj.CompanyName,
				Location:    sj.Location,
			}
		}
		batch := domain.PendingBatch{
			ID:          ulid.Make().String(),
			UserID:      sb.UserID,
			Jobs:        jobs,
			CVID:        sb.CVID,
			Style:       sb.Style,
			RetriesLeft: defaultRetries,
		}
		if err := repo.Insert(ctx, batch); err != nil {
			slog.Error("batch insert failed",
				slog.String("batch_id", batch.ID), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("batch seeded",
			slog.String("batch_id", batch.ID),
			slog.Int64("user_id", sb.UserID),
			slog.Int("jobs", len(jobs)))
	}
}
