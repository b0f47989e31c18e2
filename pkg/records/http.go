package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPSource reads collections from a REST backend that returns JSON and
// extracts the documents with a gjson path.
//
// Example configuration for the school management backend:
//
//	src := &HTTPSource{
//	    URL: "http://backend:3000/api/{{.Collection}}",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	    },
//	    DocumentsPath: "data",
//	    TemplateVars: map[string]string{"Token": "..."},
//	}
type HTTPSource struct {
	// URL is the endpoint template (required). Supports {{.Collection}} and
	// {{.Kind}} plus every TemplateVars entry.
	URL string

	// Headers are extra request headers. Values are templates too.
	Headers map[string]string

	// DocumentsPath is the gjson path to the document array in the response.
	// Defaults to "@this" (the response is the array).
	DocumentsPath string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in URL and Headers templates.
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string { return "http" }

// Find implements Source. It calls the endpoint for the kind's collection and
// returns every element found at DocumentsPath.
func (h *HTTPSource) Find(ctx context.Context, kind Kind) ([]gjson.Result, error) {
	docs, err := h.find(ctx, kind)
	if err != nil {
		return nil, &DataSourceError{Source: h.Name(), Kind: kind.Name, Op: "find", Err: err}
	}
	return docs, nil
}

func (h *HTTPSource) find(ctx context.Context, kind Kind) ([]gjson.Result, error) {
	if h.URL == "" {
		return nil, errors.New("URL is required")
	}

	templateData := map[string]any{
		"Collection": kind.Collection,
		"Kind":       kind.Name,
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	url, err := renderTemplate(h.URL, templateData)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// The school backend answers list endpoints with 201.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if !gjson.ValidBytes(respBody) {
		return nil, errors.New("response is not valid JSON")
	}

	path := h.DocumentsPath
	if path == "" {
		path = "@this"
	}

	docs := gjson.GetBytes(respBody, path)
	if !docs.Exists() {
		return nil, fmt.Errorf("documents path %q not found in response", path)
	}
	if !docs.IsArray() {
		return nil, fmt.Errorf("documents path %q is not an array", path)
	}

	return docs.Array(), nil
}

// renderTemplate renders a text template with the given data.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
