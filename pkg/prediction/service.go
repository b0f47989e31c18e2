// Package prediction owns the process-wide trained model and serves
// predictions and batch analytics from it.
//
// The model is initialised once, on the first request or eagerly at startup:
// a persisted artifact is loaded if present and readable, otherwise the full
// offline pipeline runs (reference data, marks, feature fitting, training)
// and its result is persisted and cached. Reads of the cached artifact are
// lock free. Initialisation and retraining go through a single-flight group
// so concurrent callers share one load or training run; failures are not
// cached and the next caller tries again.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HatiCode/markcast/pkg/analytics"
	"github.com/HatiCode/markcast/pkg/features"
	"github.com/HatiCode/markcast/pkg/records"
	"github.com/HatiCode/markcast/pkg/reference"
	"github.com/HatiCode/markcast/pkg/storage"
	"github.com/HatiCode/markcast/pkg/training"
)

// Origins reported by Init.
const (
	OriginStore   = "store"
	OriginTrained = "trained"
)

// Observer receives operational measurements. Implementations must be safe
// for concurrent use.
type Observer interface {
	RecordInit(origin string, m storage.Metrics, seconds float64)
	RecordTrain(m storage.Metrics, seconds float64)
	RecordPredict(rows int, seconds float64)
	RecordDropped(stage string, n int)
	RecordUnknown(field string, n int)
	RecordError(component, reason string)
}

type nopObserver struct{}

func (nopObserver) RecordInit(string, storage.Metrics, float64) {}
func (nopObserver) RecordTrain(storage.Metrics, float64)         {}
func (nopObserver) RecordPredict(int, float64)                   {}
func (nopObserver) RecordDropped(string, int)                    {}
func (nopObserver) RecordUnknown(string, int)                    {}
func (nopObserver) RecordError(string, string)                   {}

// Service serves predictions from a lazily initialised artifact.
type Service struct {
	store   storage.Store
	source  records.Source
	loader  *reference.Loader
	builder *features.Builder
	trainer *training.Trainer
	logger  *slog.Logger
	obs     Observer

	current atomic.Pointer[storage.Artifact]
	flight  singleflight.Group

	// trainMu serialises pipeline runs between init and explicit retrains.
	trainMu sync.Mutex
}

// New creates a Service. obs may be nil.
func New(
	store storage.Store,
	source records.Source,
	trainer *training.Trainer,
	logger *slog.Logger,
	obs Observer,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Service{
		store:   store,
		source:  source,
		loader:  reference.NewLoader(source, logger),
		builder: features.NewBuilder(logger),
		trainer: trainer,
		logger:  logger.With("component", "prediction"),
		obs:     obs,
	}
}

// Ready reports whether an artifact is cached.
func (s *Service) Ready() bool {
	return s.current.Load() != nil
}

// Artifact returns the cached artifact, if any.
func (s *Service) Artifact() (storage.Artifact, bool) {
	a := s.current.Load()
	if a == nil {
		return storage.Artifact{}, false
	}
	return *a, true
}

// Init returns the cached artifact, loading or training it on first use.
//
// The work runs detached from ctx cancellation so one departing caller does
// not fail the others waiting on the same initialisation.
func (s *Service) Init(ctx context.Context) (storage.Artifact, error) {
	if a := s.current.Load(); a != nil {
		return *a, nil
	}

	v, err, _ := s.flight.Do("init", func() (any, error) {
		if a := s.current.Load(); a != nil {
			return a, nil
		}
		return s.initialize(context.WithoutCancel(ctx))
	})
	if err != nil {
		return storage.Artifact{}, err
	}
	return *v.(*storage.Artifact), nil
}

// initialize publishes the artifact it loads or trains only if nothing is
// cached yet; an explicit retrain that finished meanwhile wins.
func (s *Service) initialize(ctx context.Context) (*storage.Artifact, error) {
	start := time.Now()

	a, found, err := s.store.Get(ctx)
	switch {
	case err == nil && found:
		if !s.current.CompareAndSwap(nil, &a) {
			return s.current.Load(), nil
		}
		s.obs.RecordInit(OriginStore, a.Metrics, time.Since(start).Seconds())
		s.logger.Info("loaded persisted model",
			"trained_at", a.TrainedAt,
			"rows", a.Metrics.Rows,
			"holdout_mse", a.Metrics.HoldoutMSE,
		)
		return &a, nil

	case errors.Is(err, storage.ErrModelUnavailable):
		s.obs.RecordError("store", "artifact_unreadable")
		s.logger.Warn("persisted model unreadable, retraining", "error", err)

	case err != nil:
		s.obs.RecordError("store", "get_failed")
		return nil, fmt.Errorf("failed to load model: %w", err)

	default:
		s.logger.Info("no persisted model, training")
	}

	trained, err := s.runPipeline(ctx)
	if err != nil {
		return nil, err
	}
	if !s.current.CompareAndSwap(nil, trained) {
		return s.current.Load(), nil
	}
	s.obs.RecordInit(OriginTrained, trained.Metrics, time.Since(start).Seconds())
	return trained, nil
}

// Retrain runs the offline pipeline, persists the result and swaps it in.
// Predictions in flight keep the artifact they started with.
func (s *Service) Retrain(ctx context.Context) (storage.Artifact, error) {
	v, err, _ := s.flight.Do("retrain", func() (any, error) {
		trained, err := s.runPipeline(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.current.Store(trained)
		return trained, nil
	})
	if err != nil {
		return storage.Artifact{}, err
	}
	return *v.(*storage.Artifact), nil
}

// runPipeline loads reference data and marks, fits features and trains.
func (s *Service) runPipeline(ctx context.Context) (*storage.Artifact, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	start := time.Now()

	refs, err := s.loader.LoadAll(ctx)
	if err != nil {
		s.obs.RecordError("source", "reference_load_failed")
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	docs, err := s.source.Find(ctx, records.Marks)
	if err != nil {
		s.obs.RecordError("source", "marks_load_failed")
		return nil, fmt.Errorf("failed to load marks: %w", err)
	}

	batch := records.FromDocuments(docs)
	if n := batch.Dropped(); n > 0 {
		s.obs.RecordDropped("decode", n)
		s.logger.Debug("dropped invalid mark documents", "count", n)
	}

	frame, enc := s.builder.Fit(batch.Records)
	if frame.Dropped > 0 {
		s.obs.RecordDropped("features", frame.Dropped)
	}
	frame.Dropped += batch.Dropped()
	s.logUnresolved(refs, frame.Records)

	a, err := s.trainer.Train(ctx, frame, enc)
	if err != nil {
		s.obs.RecordError("trainer", "train_failed")
		return nil, err
	}

	s.obs.RecordTrain(a.Metrics, time.Since(start).Seconds())
	return &a, nil
}

func (s *Service) logUnresolved(refs reference.Set, recs []records.ExamRecord) {
	var students, subjects, classes int
	for _, r := range recs {
		if refs.Student(r.Student) == reference.Unknown {
			students++
		}
		if refs.Subject(r.Subject) == reference.Unknown {
			subjects++
		}
		if refs.Class(r.Class) == reference.Unknown {
			classes++
		}
	}
	if students+subjects+classes > 0 {
		s.logger.Debug("training marks reference unknown ids",
			"students", students,
			"subjects", subjects,
			"classes", classes,
		)
	}
}

// Predict returns one prediction per record kept after filtering, along with
// the kept records. Records with missing fields are dropped, not rejected.
func (s *Service) Predict(ctx context.Context, recs []records.ExamRecord) ([]float64, features.Frame, error) {
	a, err := s.Init(ctx)
	if err != nil {
		return nil, features.Frame{}, err
	}
	return s.predictWith(ctx, a, recs)
}

func (s *Service) predictWith(ctx context.Context, a storage.Artifact, recs []records.ExamRecord) ([]float64, features.Frame, error) {
	start := time.Now()

	frame, err := s.builder.Transform(recs, a.Encoders)
	if err != nil {
		s.obs.RecordError("features", "encoding_mismatch")
		return nil, features.Frame{}, err
	}
	if frame.Dropped > 0 {
		s.obs.RecordDropped("features", frame.Dropped)
	}
	for field, n := range frame.Unknown {
		s.obs.RecordUnknown(field, n)
	}

	preds, err := a.Model.Predict(ctx, frame.Matrix())
	if err != nil {
		s.obs.RecordError("model", "predict_failed")
		return nil, features.Frame{}, fmt.Errorf("predict: %w", err)
	}

	s.obs.RecordPredict(len(preds), time.Since(start).Seconds())
	return preds, frame, nil
}

// Result is the full answer to one prediction request.
type Result struct {
	Predictions      []float64                   `json:"predictions"`
	StudentProgress  []analytics.StudentProgress `json:"student_progress"`
	SubjectAnalytics []analytics.SubjectSummary  `json:"subject_analytics"`

	// Dropped counts records rejected by validation or missing fields.
	Dropped int `json:"dropped"`
}

// Evaluate predicts marks for batch and summarises the kept records. Reference
// names are loaded fresh for each call.
func (s *Service) Evaluate(ctx context.Context, batch records.Batch) (Result, error) {
	if n := len(batch.Rejected); n > 0 {
		s.obs.RecordDropped("decode", n)
	}

	a, err := s.Init(ctx)
	if err != nil {
		return Result{}, err
	}

	refs, err := s.loader.LoadAll(ctx)
	if err != nil {
		s.obs.RecordError("source", "reference_load_failed")
		return Result{}, err
	}

	preds, frame, err := s.predictWith(ctx, a, batch.Records)
	if err != nil {
		return Result{}, err
	}

	progress, subjects := analytics.Summarize(analytics.Enrich(frame.Records, refs))

	return Result{
		Predictions:      preds,
		StudentProgress:  progress,
		SubjectAnalytics: subjects,
		Dropped:          batch.Dropped() + frame.Dropped,
	}, nil
}

// Info describes the cached artifact.
type Info struct {
	Model       string          `json:"model"`
	TrainedAt   time.Time       `json:"trained_at"`
	Trees       int             `json:"trees"`
	Columns     []string        `json:"columns"`
	Importances []float64       `json:"importances"`
	Categories  map[string]int  `json:"categories"`
	Metrics     storage.Metrics `json:"metrics"`
}

// Info returns metadata about the cached artifact, or false before Init.
func (s *Service) Info() (Info, bool) {
	a, ok := s.Artifact()
	if !ok {
		return Info{}, false
	}
	return Info{
		Model:       a.Model.Name(),
		TrainedAt:   a.TrainedAt,
		Trees:       a.Model.Config().Trees,
		Columns:     a.Columns,
		Importances: a.Model.Importances(),
		Categories:  a.Encoders.Sizes(),
		Metrics:     a.Metrics,
	}, true
}
