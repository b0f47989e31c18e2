// Package metrics provides Prometheus instrumentation for the predictor.
//
// Metrics exposed:
//   - markcast_model_init_seconds: Histogram of model initialisation duration by origin
//   - markcast_model_train_seconds: Histogram of training duration
//   - markcast_model_holdout_mse: Gauge of the current model's holdout MSE
//   - markcast_model_training_rows: Gauge of rows the current model was fitted on
//   - markcast_predict_seconds: Histogram of prediction duration
//   - markcast_predicted_records_total: Counter of records predicted
//   - markcast_dropped_records_total: Counter of dropped records by stage
//   - markcast_unknown_categories_total: Counter of unseen categories by field
//   - markcast_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/markcast/pkg/storage"
)

// Metrics holds all Prometheus metrics for the predictor. It implements
// prediction.Observer.
type Metrics struct {
	InitSeconds       *prometheus.HistogramVec
	TrainSeconds      prometheus.Histogram
	HoldoutMSE        prometheus.Gauge
	TrainingRows      prometheus.Gauge
	PredictSeconds    prometheus.Histogram
	PredictedRecords  prometheus.Counter
	DroppedRecords    *prometheus.CounterVec
	UnknownCategories *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// New creates and registers all metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers all metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "markcast_model_init_seconds",
			Help:    "Time spent initialising the model, by origin (store or trained)",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		}, []string{"origin"}),

		TrainSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "markcast_model_train_seconds",
			Help:    "Time spent fitting and persisting the model",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		}),

		HoldoutMSE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "markcast_model_holdout_mse",
			Help: "Mean squared error of the current model on its holdout rows",
		}),

		TrainingRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "markcast_model_training_rows",
			Help: "Rows the current model was fitted on",
		}),

		PredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "markcast_predict_seconds",
			Help:    "Time spent building features and predicting a batch",
			Buckets: prometheus.DefBuckets,
		}),

		PredictedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "markcast_predicted_records_total",
			Help: "Total number of exam records predicted",
		}),

		DroppedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "markcast_dropped_records_total",
			Help: "Total number of records dropped by stage",
		}, []string{"stage"}),

		UnknownCategories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "markcast_unknown_categories_total",
			Help: "Total number of categorical values not seen during training, by field",
		}, []string{"field"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "markcast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordInit records a model initialisation and the quality of the model it
// produced, so the gauges are populated after a restart that loads a
// persisted model.
func (m *Metrics) RecordInit(origin string, s storage.Metrics, seconds float64) {
	m.InitSeconds.WithLabelValues(origin).Observe(seconds)
	m.HoldoutMSE.Set(s.HoldoutMSE)
	m.TrainingRows.Set(float64(s.TrainRows))
}

// RecordTrain records a training run and the resulting model's quality.
func (m *Metrics) RecordTrain(s storage.Metrics, seconds float64) {
	m.TrainSeconds.Observe(seconds)
	m.HoldoutMSE.Set(s.HoldoutMSE)
	m.TrainingRows.Set(float64(s.TrainRows))
}

// RecordPredict records a predicted batch.
func (m *Metrics) RecordPredict(rows int, seconds float64) {
	m.PredictSeconds.Observe(seconds)
	m.PredictedRecords.Add(float64(rows))
}

// RecordDropped counts records dropped at stage.
func (m *Metrics) RecordDropped(stage string, n int) {
	if n > 0 {
		m.DroppedRecords.WithLabelValues(stage).Add(float64(n))
	}
}

// RecordUnknown counts unseen categorical values of field.
func (m *Metrics) RecordUnknown(field string, n int) {
	if n > 0 {
		m.UnknownCategories.WithLabelValues(field).Add(float64(n))
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
