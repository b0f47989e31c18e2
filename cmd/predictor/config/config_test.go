package config

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("predictor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return Parse(fs, args)
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"environment variable set", "TEST_VAR", "default", "from-env", "from-env"},
		{"environment variable not set", "NONEXISTENT_VAR", "default", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"valid integer", "42", 42},
		{"invalid integer", "not-a-number", 10},
		{"not set", "", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_INT", tt.envValue)
			}
			if got := getEnvInt("TEST_INT", 10); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.25")
	if got := getEnvFloat("TEST_FLOAT", 0.2); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	t.Setenv("TEST_FLOAT", "abc")
	if got := getEnvFloat("TEST_FLOAT", 0.2); got != 0.2 {
		t.Errorf("getEnvFloat() = %v, want default 0.2", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45s")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("getEnvDuration() = %v, want 45s", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() = %v, want default 1m", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := getEnvBool("TEST_BOOL", true); got != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"URL":            "url",
		"DOCUMENTS_PATH": "documentsPath",
		"ENSURE_SCHEMA":  "ensureSchema",
		"TEMPLATE_VARS":  "templateVars",
		"":               "",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSourceConfig(t *testing.T) {
	env := []string{
		"SOURCE=http",
		"SOURCE_URL=http://backend:3000/api/{{.Collection}}",
		"SOURCE_DOCUMENTS_PATH=data",
		"SOURCE_HEADERS={\"Accept\":\"application/json\"}",
		"SOURCE_TIMEOUT=5s",
		"SOURCE_TLS_CA_FILE=/etc/ca.pem",
		"REDIS_ADDR=localhost:6379",
	}

	got := parseSourceConfig(env)

	want := map[string]string{
		"url":           "http://backend:3000/api/{{.Collection}}",
		"documentsPath": "data",
		"headers":       `{"Accept":"application/json"}`,
	}
	if len(got) != len(want) {
		t.Fatalf("parseSourceConfig() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("config[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Listen != ":8000" {
		t.Errorf("Listen = %q, want :8000", cfg.Listen)
	}
	if cfg.Storage != "file" || cfg.ModelPath != "student_performance_model.json" {
		t.Errorf("storage = %q at %q", cfg.Storage, cfg.ModelPath)
	}
	if cfg.Trees != 100 || cfg.Seed != 42 || cfg.TestFraction != 0.2 {
		t.Errorf("forest defaults = trees %d seed %d fraction %v", cfg.Trees, cfg.Seed, cfg.TestFraction)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3001" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.EagerInit {
		t.Error("EagerInit should default to false")
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TREES", "50")
	t.Setenv("STORAGE", "memory")

	cfg, err := parse(t, "-trees=10", "-seed=7", "-cors-origins=http://a.example, http://b.example")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Trees != 10 {
		t.Errorf("Trees = %d, want flag value 10", cfg.Trees)
	}
	if cfg.Storage != "memory" {
		t.Errorf("Storage = %q, want env value memory", cfg.Storage)
	}

	tc := cfg.TrainingConfig()
	if tc.Forest.Trees != 10 || tc.Forest.Seed != 7 || tc.SplitSeed != 7 {
		t.Errorf("TrainingConfig() = %+v", tc)
	}
	if tc.Forest.MinSamplesSplit != 2 {
		t.Errorf("MinSamplesSplit = %d, want default 2", tc.Forest.MinSamplesSplit)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "http://a.example|http://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown storage", []string{"-storage=s3"}},
		{"unknown source", []string{"-source=mongo"}},
		{"zero trees", []string{"-trees=0"}},
		{"negative seed", []string{"-seed=-1"}},
		{"test fraction of one", []string{"-test-fraction=1"}},
		{"tls without cert", []string{"-tls-enabled"}},
		{"source tls missing ca", []string{"-source-tls-enabled", "-source-tls-ca-file=/nonexistent/ca.pem"}},
		{"zero body limit", []string{"-max-body-bytes=0"}},
		{"unknown flag", []string{"-workload=api"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse(t, tt.args...); err == nil {
				t.Errorf("Parse(%v) expected error", tt.args)
			}
		})
	}
}

func TestParse_SourceConfigFromEnv(t *testing.T) {
	t.Setenv("SOURCE", "file")
	t.Setenv("SOURCE_PATH", "testdata/school.json")

	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Source != "file" {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.SourceConfig["path"] != "testdata/school.json" {
		t.Errorf("SourceConfig = %v", cfg.SourceConfig)
	}
}
