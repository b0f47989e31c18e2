// Package config provides configuration parsing for the markcast predictor
// and trainer.
//
// Command-line flags take precedence over environment variables, which take
// precedence over defaults. A .env file in the working directory is loaded
// into the environment first, without overriding variables already set.
//
// Record source settings are passed through as a generic map: every SOURCE_*
// variable becomes a lowerCamelCase key (SOURCE_DOCUMENTS_PATH → documentsPath),
// except the SOURCE_TLS_* and SOURCE_TIMEOUT variables that configure the
// HTTP client used to reach the source.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	src, err := records.New(ctx, cfg.Source, cfg.SourceConfig)
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HatiCode/markcast/pkg/models"
	"github.com/HatiCode/markcast/pkg/storage"
	"github.com/HatiCode/markcast/pkg/tls"
	"github.com/HatiCode/markcast/pkg/training"
)

// Config holds all predictor configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config

	Storage       string
	ModelPath     string
	ModelKey      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Source        string
	SourceConfig  map[string]string
	SourceTimeout time.Duration
	SourceTLS     tls.Config

	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	Seed           uint64
	TestFraction   float64
	Workers        int

	EagerInit      bool
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// ParseFlags parses the process flags and environment into a Config and exits
// on invalid configuration.
func ParseFlags() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers the predictor flags on fs, parses args and validates the
// result. Environment variables are read at registration time as defaults.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	var seed int
	var origins string
	var maxBody int

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8000"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50051"), "gRPC health listen address (empty disables)")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "file"), "Model storage backend: file, redis or memory")
	fs.StringVar(&cfg.ModelPath, "model-path", getEnv("MODEL_PATH", storage.DefaultFilePath), "Model artifact path for file storage")
	fs.StringVar(&cfg.ModelKey, "model-key", getEnv("MODEL_KEY", storage.DefaultRedisKey), "Model artifact key for redis storage")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", "postgres"), "Record source: postgres, http or file")
	fs.DurationVar(&cfg.SourceTimeout, "source-timeout", getEnvDuration("SOURCE_TIMEOUT", 10*time.Second), "HTTP source request timeout")
	fs.BoolVar(&cfg.SourceTLS.Enabled, "source-tls-enabled", getEnvBool("SOURCE_TLS_ENABLED", false), "Enable TLS for the HTTP source")
	fs.StringVar(&cfg.SourceTLS.CertFile, "source-tls-cert-file", getEnv("SOURCE_TLS_CERT_FILE", ""), "Client certificate for the HTTP source")
	fs.StringVar(&cfg.SourceTLS.KeyFile, "source-tls-key-file", getEnv("SOURCE_TLS_KEY_FILE", ""), "Client private key for the HTTP source")
	fs.StringVar(&cfg.SourceTLS.CAFile, "source-tls-ca-file", getEnv("SOURCE_TLS_CA_FILE", ""), "CA certificate for the HTTP source")

	defaults := training.DefaultConfig()
	fs.IntVar(&cfg.Trees, "trees", getEnvInt("TREES", defaults.Forest.Trees), "Number of trees in the forest")
	fs.IntVar(&cfg.MaxDepth, "max-depth", getEnvInt("MAX_DEPTH", 0), "Maximum tree depth (0 = unlimited)")
	fs.IntVar(&cfg.MinSamplesLeaf, "min-samples-leaf", getEnvInt("MIN_SAMPLES_LEAF", defaults.Forest.MinSamplesLeaf), "Minimum rows per leaf")
	fs.IntVar(&cfg.MaxFeatures, "max-features", getEnvInt("MAX_FEATURES", 0), "Features considered per split (0 = all)")
	fs.IntVar(&seed, "seed", getEnvInt("SEED", int(defaults.Forest.Seed)), "Random seed for bootstrap and split")
	fs.Float64Var(&cfg.TestFraction, "test-fraction", getEnvFloat("TEST_FRACTION", defaults.TestFraction), "Share of rows held out for evaluation")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", 0), "Parallel tree builders (0 = GOMAXPROCS)")

	fs.BoolVar(&cfg.EagerInit, "eager-init", getEnvBool("EAGER_INIT", false), "Load or train the model at startup instead of on the first request")
	fs.StringVar(&origins, "cors-origins", getEnv("CORS_ORIGINS", "http://localhost:3001"), "Comma-separated allowed CORS origins")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute), "Per-request timeout, including first-request training")
	fs.IntVar(&maxBody, "max-body-bytes", getEnvInt("MAX_BODY_BYTES", 1<<20), "Maximum request body size")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if seed < 0 {
		return nil, fmt.Errorf("seed must be >= 0, got %d", seed)
	}
	cfg.Seed = uint64(seed)
	cfg.MaxBodyBytes = int64(maxBody)
	cfg.CORSOrigins = splitList(origins)
	cfg.SourceConfig = parseSourceConfig(os.Environ())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage {
	case "file":
		if c.ModelPath == "" {
			return fmt.Errorf("model path is required when storage=file")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required when storage=redis")
		}
		if c.ModelKey == "" {
			return fmt.Errorf("model key is required when storage=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage %q (must be file, redis, or memory)", c.Storage)
	}

	switch c.Source {
	case "postgres", "http", "file":
	default:
		return fmt.Errorf("invalid source %q (must be postgres, http, or file)", c.Source)
	}

	if c.TestFraction < 0 || c.TestFraction >= 1 {
		return fmt.Errorf("test fraction must be in [0, 1), got %v", c.TestFraction)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be > 0")
	}

	if _, err := models.NewRandomForest(c.ForestConfig()); err != nil {
		return err
	}

	if c.TLS.Enabled {
		if err := c.TLS.ValidateServer(); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
	}
	if err := c.SourceTLS.Validate(); err != nil {
		return fmt.Errorf("source tls: %w", err)
	}

	return nil
}

// ForestConfig returns the forest hyperparameters.
func (c *Config) ForestConfig() models.ForestConfig {
	fc := models.DefaultForestConfig()
	fc.Trees = c.Trees
	fc.MaxDepth = c.MaxDepth
	fc.MinSamplesLeaf = c.MinSamplesLeaf
	fc.MaxFeatures = c.MaxFeatures
	fc.Seed = c.Seed
	fc.Workers = c.Workers
	return fc
}

// TrainingConfig returns the trainer configuration. The split shares the
// forest seed.
func (c *Config) TrainingConfig() training.Config {
	return training.Config{
		Forest:       c.ForestConfig(),
		TestFraction: c.TestFraction,
		SplitSeed:    c.Seed,
	}
}

// reservedSourceKeys configure the source's HTTP client, not the source.
var reservedSourceKeys = []string{"SOURCE_TIMEOUT", "SOURCE_TLS_"}

// parseSourceConfig turns SOURCE_* variables into a generic configuration map.
// For example SOURCE_URL → url, SOURCE_ENSURE_SCHEMA → ensureSchema.
func parseSourceConfig(environ []string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		if len(env) <= 7 || env[:7] != "SOURCE_" || isReserved(env) {
			continue
		}
		parts := splitEnv(env)
		if len(parts) == 2 {
			key := toLowerCamelCase(parts[0][7:])
			config[key] = parts[1]
		}
	}

	return config
}

func isReserved(env string) bool {
	for _, prefix := range reservedSourceKeys {
		if strings.HasPrefix(env, prefix) {
			return true
		}
	}
	return false
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
