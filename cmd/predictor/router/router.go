// Package router configures HTTP routes for the predictor's HTTP API.
//
// Routes configured:
//   - POST /predict - Predict marks for a batch of exam records and summarise it
//   - POST /model/retrain - Rebuild the model from the record store
//   - GET /model - Metadata about the current model
//   - GET /healthz - Liveness (always 200 OK)
//   - GET /readyz - Readiness (200 once a model is loaded)
//   - GET /metrics - Prometheus metrics endpoint
//
// /predict accepts a JSON array of exam objects and answers with predictions,
// per-student progress and per-subject averages. Records dropped by
// validation are counted in the "dropped" field and the X-Markcast-Dropped
// header. Every failure is a 500 with an {"error": "..."} body.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/markcast/pkg/httpx"
	"github.com/HatiCode/markcast/pkg/prediction"
	"github.com/HatiCode/markcast/pkg/records"
	"github.com/HatiCode/markcast/pkg/storage"
)

// DroppedHeader carries the number of dropped records on /predict responses.
const DroppedHeader = "X-Markcast-Dropped"

// Predictor is the part of prediction.Service the routes use.
type Predictor interface {
	Ready() bool
	Evaluate(ctx context.Context, batch records.Batch) (prediction.Result, error)
	Retrain(ctx context.Context) (storage.Artifact, error)
	Info() (prediction.Info, bool)
}

// Options bounds request handling.
type Options struct {
	// RequestTimeout bounds each prediction or retrain request.
	RequestTimeout time.Duration

	// MaxBodyBytes bounds the /predict request body.
	MaxBodyBytes int64
}

// SetupRoutes configures HTTP endpoints for the predictor.
func SetupRoutes(svc Predictor, opts Options, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.Handle("/readyz", httpx.HealthHandlerWithCheck(func() error {
		if !svc.Ready() {
			return errors.New("model not loaded")
		}
		return nil
	}))

	mux.HandleFunc("POST /predict", handlePredict(svc, opts, logger))
	mux.HandleFunc("POST /model/retrain", handleRetrain(svc, opts, logger))
	mux.HandleFunc("GET /model", handleModelInfo(svc, logger))

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// handlePredict returns a handler for POST /predict.
func handlePredict(svc Predictor, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				err = fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
			}
			logger.Warn("failed to read request body", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, err)
			return
		}

		batch, err := records.DecodeBatch(body)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), opts.RequestTimeout)
		defer cancel()

		result, err := svc.Evaluate(ctx, batch)
		if err != nil {
			logger.Error("prediction failed", "records", len(batch.Records), "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, err)
			return
		}

		if result.Dropped > 0 {
			logger.Debug("records dropped", "dropped", result.Dropped, "kept", len(result.Predictions))
		}
		w.Header().Set(DroppedHeader, strconv.Itoa(result.Dropped))

		if err := httpx.WriteJSON(w, http.StatusOK, result); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleRetrain returns a handler for POST /model/retrain.
func handleRetrain(svc Predictor, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), opts.RequestTimeout)
		defer cancel()

		if _, err := svc.Retrain(ctx); err != nil {
			logger.Error("retrain failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, err)
			return
		}

		info, _ := svc.Info()
		logger.Info("model retrained",
			"rows", info.Metrics.Rows,
			"holdout_mse", info.Metrics.HoldoutMSE,
		)
		if err := httpx.WriteJSON(w, http.StatusOK, info); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleModelInfo returns a handler for GET /model.
func handleModelInfo(svc Predictor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := svc.Info()
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "model not loaded")
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, info); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
