package records

import (
	"context"
	"encoding/json"
	"fmt"
)

// New creates a record source based on kind and a generic configuration map.
//
// Supported kinds:
//   - "postgres": PostgresSource, requires "url" (database URL)
//   - "http":     HTTPSource, requires "url" (endpoint template)
//   - "file":     StaticSource, requires "path" (seed JSON file)
//
// Returns error if kind is unknown or required fields are missing.
func New(ctx context.Context, kind string, config map[string]string) (Source, error) {
	switch kind {
	case "postgres":
		return newPostgres(ctx, config)
	case "http":
		return newHTTP(config)
	case "file":
		return newFile(config)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be postgres, http, or file)", kind)
	}
}

func newPostgres(ctx context.Context, config map[string]string) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("postgres source requires 'url' config")
	}

	src, err := NewPostgresSource(ctx, url)
	if err != nil {
		return nil, err
	}

	if config["ensureSchema"] == "true" {
		if err := src.EnsureSchema(ctx); err != nil {
			src.Close()
			return nil, err
		}
	}

	return src, nil
}

func newHTTP(config map[string]string) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	return &HTTPSource{
		URL:           url,
		Headers:       headers,
		DocumentsPath: config["documentsPath"],
		TemplateVars:  templateVars,
	}, nil
}

func newFile(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("file source requires 'path' config")
	}
	return LoadStaticSource(path)
}
