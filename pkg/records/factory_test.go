package records

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNew_HTTP(t *testing.T) {
	config := map[string]string{
		"url":           "http://backend:3000/api/{{.Collection}}",
		"documentsPath": "data",
		"headers":       `{"Authorization":"Bearer {{.Token}}"}`,
		"templateVars":  `{"Token":"abc"}`,
	}

	src, err := New(context.Background(), "http", config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	httpSrc, ok := src.(*HTTPSource)
	if !ok {
		t.Fatalf("expected *HTTPSource, got %T", src)
	}
	if httpSrc.URL != config["url"] {
		t.Errorf("URL = %s, want %s", httpSrc.URL, config["url"])
	}
	if httpSrc.DocumentsPath != "data" {
		t.Errorf("DocumentsPath = %s, want data", httpSrc.DocumentsPath)
	}
	if httpSrc.Headers["Authorization"] != "Bearer {{.Token}}" {
		t.Errorf("Authorization header = %q", httpSrc.Headers["Authorization"])
	}
	if httpSrc.TemplateVars["Token"] != "abc" {
		t.Errorf("TemplateVars[Token] = %q, want abc", httpSrc.TemplateVars["Token"])
	}
}

func TestNew_HTTPInvalidHeaders(t *testing.T) {
	_, err := New(context.Background(), "http", map[string]string{"url": "http://x", "headers": "{bad"})
	if err == nil {
		t.Fatal("expected error for invalid headers JSON")
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(`{"marks":[]}`), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	src, err := New(context.Background(), "file", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if src.Name() != "static" {
		t.Errorf("Name() = %s, want static", src.Name())
	}
}

func TestNew_MissingRequiredConfig(t *testing.T) {
	tests := []struct {
		kind   string
		config map[string]string
	}{
		{"postgres", map[string]string{}},
		{"http", map[string]string{}},
		{"file", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if _, err := New(context.Background(), tt.kind, tt.config); err == nil {
				t.Errorf("New(%s) expected error for missing config", tt.kind)
			}
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(context.Background(), "mongo", nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
