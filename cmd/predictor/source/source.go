// Package source builds the record source selected by configuration.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HatiCode/markcast/cmd/predictor/config"
	"github.com/HatiCode/markcast/pkg/httpx"
	"github.com/HatiCode/markcast/pkg/records"
)

// New creates the configured record source. The HTTP source gets a client
// with the configured timeout and TLS settings.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (records.Source, error) {
	src, err := records.New(ctx, cfg.Source, cfg.SourceConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s source: %w", cfg.Source, err)
	}

	if h, ok := src.(*records.HTTPSource); ok {
		client, err := httpx.NewClient(cfg.SourceTLS, cfg.SourceTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create source client: %w", err)
		}
		h.HTTPClient = client
	}

	logger.Info("using record source", "source", src.Name(), "tls_enabled", cfg.SourceTLS.Enabled)
	return src, nil
}
