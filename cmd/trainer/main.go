// Command trainer rebuilds the markcast model offline.
//
// It loads the reference collections and every mark from the record store,
// fits the categorical encoders and the random forest, evaluates the forest
// on a held-out split and persists the artifact where the predictor will load
// it. It accepts the same flags and environment variables as the predictor;
// the HTTP and gRPC settings are ignored.
//
// Usage:
//
//	trainer -source=file -storage=file -model-path=student_performance_model.json
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HatiCode/markcast/cmd/predictor/config"
	"github.com/HatiCode/markcast/cmd/predictor/logger"
	"github.com/HatiCode/markcast/cmd/predictor/source"
	"github.com/HatiCode/markcast/cmd/predictor/store"
	"github.com/HatiCode/markcast/pkg/prediction"
	"github.com/HatiCode/markcast/pkg/training"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting markcast trainer",
		"version", version,
		"source", cfg.Source,
		"storage", cfg.Storage,
		"trees", cfg.Trees,
		"seed", cfg.Seed,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	if err := run(ctx, cfg, log); err != nil {
		stop()
		log.Error("training failed", "error", err)
		os.Exit(1)
	}
	stop()
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	modelStore, err := store.New(cfg, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, modelStore)

	src, err := source.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, src)

	trainer, err := training.New(cfg.TrainingConfig(), modelStore, log)
	if err != nil {
		return err
	}

	svc := prediction.New(modelStore, src, trainer, log, nil)
	a, err := svc.Retrain(ctx)
	if err != nil {
		return err
	}

	log.Info("model persisted",
		"trained_at", a.TrainedAt,
		"rows", a.Metrics.Rows,
		"train_rows", a.Metrics.TrainRows,
		"holdout_rows", a.Metrics.HoldoutRows,
		"dropped", a.Metrics.Dropped,
		"holdout_mse", a.Metrics.HoldoutMSE,
	)
	return nil
}

func closeQuietly(log *slog.Logger, v any) {
	if closer, ok := v.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error("failed to close", "error", err)
		}
	}
}
