package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ForestConfig controls how a RandomForest is grown.
type ForestConfig struct {
	// Trees is the number of trees in the ensemble.
	Trees int `json:"trees"`

	// MaxDepth bounds tree depth. 0 grows until leaves are pure or too small.
	MaxDepth int `json:"maxDepth"`

	// MinSamplesSplit is the smallest node that may be split.
	MinSamplesSplit int `json:"minSamplesSplit"`

	// MinSamplesLeaf is the smallest number of rows each child must keep.
	MinSamplesLeaf int `json:"minSamplesLeaf"`

	// MaxFeatures is the number of features considered per split. 0 means all.
	MaxFeatures int `json:"maxFeatures"`

	// Seed makes bootstrap sampling and feature selection reproducible.
	Seed uint64 `json:"seed"`

	// Workers bounds concurrent tree fitting. 0 uses GOMAXPROCS.
	Workers int `json:"-"`
}

// DefaultForestConfig returns 100 fully grown trees seeded with 42.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

func (c ForestConfig) validate() error {
	if c.Trees < 1 {
		return fmt.Errorf("trees must be >= 1, got %d", c.Trees)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.MinSamplesSplit < 2 {
		return fmt.Errorf("min samples split must be >= 2, got %d", c.MinSamplesSplit)
	}
	if c.MinSamplesLeaf < 1 {
		return fmt.Errorf("min samples leaf must be >= 1, got %d", c.MinSamplesLeaf)
	}
	if c.MaxFeatures < 0 {
		return fmt.Errorf("max features must be >= 0, got %d", c.MaxFeatures)
	}
	return nil
}

// RandomForest is a bagged ensemble of regression trees.
//
// Each tree is grown on a bootstrap sample of the training rows with splits
// chosen to minimise the summed squared error of the children. The
// prediction is the mean of the tree outputs. Tree i draws from a PCG source
// seeded with (Seed, i), so a given config and training set always yields the
// same forest regardless of scheduling.
//
// A trained forest is read-only and safe for concurrent Predict calls.
type RandomForest struct {
	cfg         ForestConfig
	features    int
	trees       []tree
	importances []float64
}

// NewRandomForest creates an untrained forest.
func NewRandomForest(cfg ForestConfig) (*RandomForest, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid forest config: %w", err)
	}
	return &RandomForest{cfg: cfg}, nil
}

// Name returns the model identifier.
func (f *RandomForest) Name() string {
	return "random_forest"
}

// Config returns the configuration the forest was created with.
func (f *RandomForest) Config() ForestConfig {
	return f.cfg
}

// Trained reports whether the forest holds fitted trees.
func (f *RandomForest) Trained() bool {
	return len(f.trees) > 0
}

// Features returns the row width the forest was trained on.
func (f *RandomForest) Features() int {
	return f.features
}

// Importances returns the normalised impurity decrease contributed by each
// feature across the ensemble. All zeros when no split was ever made.
func (f *RandomForest) Importances() []float64 {
	out := make([]float64, len(f.importances))
	copy(out, f.importances)
	return out
}

// Train grows the ensemble. Trees are fitted concurrently.
func (f *RandomForest) Train(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 {
		return ErrNoTrainingData
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d rows and %d targets", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return errors.New("rows have no features")
	}
	if err := checkShape(x, width); err != nil {
		return err
	}

	workers := f.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]tree, f.cfg.Trees)
	gains := make([][]float64, f.cfg.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.cfg.Seed, uint64(i)))
			gr := &grower{cfg: f.cfg, x: x, y: y, width: width, rng: rng, gain: make([]float64, width)}
			trees[i] = gr.grow(bootstrap(rng, len(x)))
			gains[i] = gr.gain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("training interrupted: %w", err)
	}

	importances := make([]float64, width)
	for _, gain := range gains {
		floats.Add(importances, gain)
	}
	if total := floats.Sum(importances); total > 0 {
		floats.Scale(1/total, importances)
	}

	f.features = width
	f.trees = trees
	f.importances = importances
	return nil
}

// Predict averages the tree outputs for every row of x, summing trees in
// index order so results are bit-for-bit reproducible.
func (f *RandomForest) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if !f.Trained() {
		return nil, ErrNotTrained
	}
	if err := checkShape(x, f.features); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sum := 0.0
		for t := range f.trees {
			sum += f.trees[t].predict(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}

func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

type forestJSON struct {
	Model       string       `json:"model"`
	Config      ForestConfig `json:"config"`
	Features    int          `json:"features"`
	Importances []float64    `json:"importances"`
	Trees       []tree       `json:"trees"`
}

// MarshalJSON encodes the fitted forest.
func (f *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestJSON{
		Model:       f.Name(),
		Config:      f.cfg,
		Features:    f.features,
		Importances: f.importances,
		Trees:       f.trees,
	})
}

// UnmarshalJSON restores a forest written by MarshalJSON, checking that every
// tree is structurally sound.
func (f *RandomForest) UnmarshalJSON(data []byte) error {
	var aux forestJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Model != "" && aux.Model != f.Name() {
		return fmt.Errorf("unexpected model %q", aux.Model)
	}
	if err := aux.Config.validate(); err != nil {
		return fmt.Errorf("invalid forest config: %w", err)
	}
	if len(aux.Trees) == 0 {
		return ErrNotTrained
	}
	if aux.Features < 1 {
		return fmt.Errorf("invalid feature count %d", aux.Features)
	}
	for i := range aux.Trees {
		if err := aux.Trees[i].validate(aux.Features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	if len(aux.Importances) != aux.Features {
		aux.Importances = make([]float64, aux.Features)
	}

	*f = RandomForest{
		cfg:         aux.Config,
		features:    aux.Features,
		trees:       aux.Trees,
		importances: aux.Importances,
	}
	return nil
}
