package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"aerialplan/internal/cli"
	"aerialplan/internal/config"
	"aerialplan/internal/geo"
	"aerialplan/internal/logging"
	"aerialplan/internal/observability"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "aerialplan: %v\n", err)
		return 1
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aerialplan: %v\n", err)
		return 1
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Paths.DatabasePath, "error", err)
		return 1
	}
	defer store.Close()

	frame := geo.NewFrame()
	ref, err := store.LoadOrigin(cfg.Mission.ID)
	switch {
	case err == nil:
		if err := frame.Restore(ref); err != nil {
			logger.Warn("ignoring stored origin", "mission", cfg.Mission.ID, "error", err)
		} else {
			logger.Debug("origin restored", "mission", cfg.Mission.ID, "generation", ref.Generation)
		}
	case !errors.Is(err, storage.ErrNotFound):
		logger.Warn("failed to load stored origin", "mission", cfg.Mission.ID, "error", err)
	}

	metrics, err := observability.New(nil)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		return 1
	}

	var cache *planner.Cache
	if cfg.Processing.CacheSize > 0 {
		cache = planner.NewCache(cfg.Processing.CacheSize, time.Duration(cfg.Processing.CacheTTLSeconds)*time.Second)
	}
	svc := planner.NewService(frame, cli.Settings(cfg), cache, metrics, logger)

	ctx := context.Background()
	pipe := pipeline.New(ctx, pipeline.Options{
		Concurrency: cfg.Processing.ParallelJobs,
		QueueSize:   cfg.Processing.QueueSize,
		MissionID:   cfg.Mission.ID,
	}, logger, store, svc, metrics)
	defer pipe.Stop()

	rootCmd := cli.NewRootCmd(cfg, logger, store, svc, pipe)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return cli.ExitCode(err)
	}
	return 0
}
