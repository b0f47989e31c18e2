// Command predictor serves exam mark predictions and batch analytics.
//
// On the first /predict request (or at startup with -eager-init) the predictor
// loads the persisted model. If none exists, or it cannot be read, it loads
// students, subjects, classes and marks from the record store, fits the
// categorical encoders and the random forest, persists the result and caches
// it for the life of the process.
//
// The predictor serves an HTTP API on port 8000 (configurable) providing:
//   - POST /predict - Predictions, student progress and subject averages for a batch
//   - POST /model/retrain - Rebuild the model from the record store
//   - GET /model - Current model metadata
//   - GET /healthz, GET /readyz - Liveness and readiness
//   - GET /metrics - Prometheus metrics endpoint
//
// A gRPC health service on GRPC_LISTEN reports NOT_SERVING until a model is
// loaded.
//
// Usage:
//
//	predictor \
//	  -source=postgres \
//	  -storage=file -model-path=/var/lib/markcast/student_performance_model.json \
//	  -cors-origins=http://localhost:3001
//
// Environment variables:
//
//	LISTEN         - HTTP listen address (default: :8000)
//	GRPC_LISTEN    - gRPC health listen address (default: :50051)
//	SOURCE         - Record source: postgres, http, file (default: postgres)
//	SOURCE_*       - Source settings, e.g. SOURCE_URL, SOURCE_DOCUMENTS_PATH
//	STORAGE        - Model store: file, redis, memory (default: file)
//	MODEL_PATH     - Model file for file storage
//	REDIS_ADDR     - Redis address for redis storage
//	TREES          - Trees in the forest (default: 100)
//	SEED           - Random seed (default: 42)
//	EAGER_INIT     - Load or train the model at startup (default: false)
//	CORS_ORIGINS   - Allowed browser origins (default: http://localhost:3001)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/markcast/cmd/predictor/config"
	"github.com/HatiCode/markcast/cmd/predictor/logger"
	"github.com/HatiCode/markcast/cmd/predictor/metrics"
	"github.com/HatiCode/markcast/cmd/predictor/router"
	"github.com/HatiCode/markcast/cmd/predictor/source"
	"github.com/HatiCode/markcast/cmd/predictor/store"
	"github.com/HatiCode/markcast/pkg/httpx"
	"github.com/HatiCode/markcast/pkg/prediction"
	"github.com/HatiCode/markcast/pkg/tls"
	"github.com/HatiCode/markcast/pkg/training"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting markcast predictor",
		"version", version,
		"listen", cfg.Listen,
		"source", cfg.Source,
		"storage", cfg.Storage,
		"trees", cfg.Trees,
		"tls_enabled", cfg.TLS.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	modelStore, err := store.New(cfg, log)
	if err != nil {
		log.Error("failed to create model store", "error", err)
		os.Exit(1)
	}
	defer closeQuietly(log, "model store", modelStore)

	src, err := source.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create record source", "error", err)
		os.Exit(1)
	}
	defer closeQuietly(log, "record source", src)

	trainer, err := training.New(cfg.TrainingConfig(), modelStore, log)
	if err != nil {
		log.Error("failed to create trainer", "error", err)
		os.Exit(1)
	}

	svc := prediction.New(modelStore, src, trainer, log, metrics.New())

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		grpcServer = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}

		go func() {
			log.Info("grpc health server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("grpc server failed", "error", err)
			}
		}()
	}

	go watchReadiness(ctx, svc, healthServer)

	if cfg.EagerInit {
		go func() {
			if _, err := svc.Init(ctx); err != nil {
				log.Error("eager model initialisation failed, retrying on first request", "error", err)
			}
		}()
	}

	mux := router.SetupRoutes(svc, router.Options{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}, log)
	handler := httpx.Chain(mux,
		httpx.RecoveryMiddleware(log),
		httpx.LoggingMiddleware(log),
		httpx.CORSMiddleware(httpx.CORSOptions{
			AllowedOrigins: cfg.CORSOrigins,
			ExposedHeaders: []string{router.DroppedHeader},
			MaxAge:         10 * time.Minute,
		}),
	)

	httpServer := httpx.NewServer(cfg.Listen, handler, cfg.RequestTimeout+10*time.Second, log)
	if cfg.TLS.Enabled {
		tlsConfig, err := tls.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			log.Error("failed to create TLS config", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsConfig)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down")
	cancel()
	healthServer.Shutdown()

	if grpcServer != nil {
		log.Info("shutting down grpc server")
		grpcServer.GracefulStop()
	}

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}

	log.Info("shutdown complete")
	if exitCode != 0 {
		closeQuietly(log, "record source", src)
		closeQuietly(log, "model store", modelStore)
		os.Exit(exitCode)
	}
}

// watchReadiness flips the gRPC health status to SERVING once a model is
// loaded.
func watchReadiness(ctx context.Context, svc *prediction.Service, hs *health.Server) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if svc.Ready() {
			hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// closeQuietly closes v if it holds resources, logging any failure.
func closeQuietly(log *slog.Logger, what string, v any) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.Error("failed to close "+what, "error", err)
	}
}
