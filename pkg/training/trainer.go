// Package training fits the mark regressor and persists it with its encoders.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/markcast/pkg/features"
	"github.com/HatiCode/markcast/pkg/models"
	"github.com/HatiCode/markcast/pkg/storage"
)

// Config controls the holdout split and the forest.
type Config struct {
	Forest models.ForestConfig

	// TestFraction is the share of rows held out for evaluation, in [0, 1).
	TestFraction float64

	// SplitSeed seeds the shuffle before the split.
	SplitSeed uint64
}

// DefaultConfig returns an 80/20 split and the default forest, both seeded
// with 42.
func DefaultConfig() Config {
	return Config{
		Forest:       models.DefaultForestConfig(),
		TestFraction: 0.2,
		SplitSeed:    42,
	}
}

// Trainer fits forests and hands the result to a store.
type Trainer struct {
	cfg    Config
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Trainer that persists to store.
func New(cfg Config, store storage.Store, logger *slog.Logger) (*Trainer, error) {
	if cfg.TestFraction < 0 || cfg.TestFraction >= 1 {
		return nil, fmt.Errorf("test fraction must be in [0, 1), got %v", cfg.TestFraction)
	}
	if _, err := models.NewRandomForest(cfg.Forest); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "trainer"),
		now:    time.Now,
	}, nil
}

// Train fits a forest on the training partition of frame, scores it on the
// holdout partition and persists the artifact. A persistence failure is
// returned as is; nothing is retried and no artifact is returned.
func (t *Trainer) Train(ctx context.Context, frame features.Frame, enc features.Encoders) (storage.Artifact, error) {
	if frame.Len() == 0 {
		return storage.Artifact{}, fmt.Errorf("cannot train: %w", models.ErrNoTrainingData)
	}

	start := time.Now()
	x := frame.Matrix()
	y := frame.Targets()
	trainIdx, testIdx := Split(len(x), t.cfg.TestFraction, t.cfg.SplitSeed)

	forest, err := models.NewRandomForest(t.cfg.Forest)
	if err != nil {
		return storage.Artifact{}, err
	}
	if err := forest.Train(ctx, pick(x, trainIdx), pick(y, trainIdx)); err != nil {
		return storage.Artifact{}, fmt.Errorf("failed to fit forest: %w", err)
	}

	metrics := storage.Metrics{
		Rows:        len(x),
		TrainRows:   len(trainIdx),
		HoldoutRows: len(testIdx),
		Dropped:     frame.Dropped,
	}
	if len(testIdx) > 0 {
		preds, err := forest.Predict(ctx, pick(x, testIdx))
		if err != nil {
			return storage.Artifact{}, fmt.Errorf("failed to score holdout: %w", err)
		}
		metrics.HoldoutMSE = MSE(pick(y, testIdx), preds)
	}

	artifact := storage.Artifact{
		Model:     forest,
		Encoders:  enc,
		Columns:   slices.Clone(features.Columns),
		TrainedAt: t.now().UTC(),
		Metrics:   metrics,
	}

	if err := t.store.Put(ctx, artifact); err != nil {
		return storage.Artifact{}, fmt.Errorf("failed to persist model: %w", err)
	}

	t.logger.Info("model trained",
		"rows", metrics.Rows,
		"train_rows", metrics.TrainRows,
		"holdout_rows", metrics.HoldoutRows,
		"holdout_mse", metrics.HoldoutMSE,
		"dropped", metrics.Dropped,
		"trees", t.cfg.Forest.Trees,
		"duration", time.Since(start),
	)

	return artifact, nil
}

// Split shuffles 0..n-1 with seed and holds out ceil(n*fraction) of them.
// Fewer than two rows are never split: every row trains.
func Split(n int, fraction float64, seed uint64) (train, test []int) {
	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	if n < 2 || fraction <= 0 {
		return perm, nil
	}

	holdout := int(math.Ceil(float64(n) * fraction))
	if holdout >= n {
		holdout = n - 1
	}
	return perm[holdout:], perm[:holdout]
}

// MSE returns the mean squared error between observed and predicted.
func MSE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	sq := make([]float64, len(observed))
	for i := range observed {
		d := observed[i] - predicted[i]
		sq[i] = d * d
	}
	return stat.Mean(sq, nil)
}

func pick[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}
