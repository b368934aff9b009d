package insights

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"instapulse/internal/model"
	"instapulse/pkg/config"
)

const (
	ModeSimulated = "simulated"
	ModeHTTP      = "http"
)

// Source fetches engagement counts and post metadata from the social platform.
type Source interface {
	FetchInsights(ctx context.Context, externalID string) (*model.Insights, error)
	FetchMetadata(ctx context.Context, externalID string) (*model.PostMetadata, error)
}

// New returns the source selected by cfg.Mode.
func New(cfg config.InsightsConfig, logger *zap.Logger) (Source, error) {
	switch cfg.Mode {
	case "", ModeSimulated:
		logger.Info("Using simulated insights source")
		return NewSimulatedSource(time.Now().UnixNano(), time.Second), nil
	case ModeHTTP:
		if cfg.BaseURL == "" || cfg.AccessToken == "" {
			return nil, fmt.Errorf("insights mode %q requires base_url and access_token", cfg.Mode)
		}
		logger.Info("Using HTTP insights source", zap.String("base_url", cfg.BaseURL))
		return NewHTTPSource(cfg.BaseURL, cfg.AccessToken, cfg.Timeout(), logger), nil
	}
	return nil, fmt.Errorf("unknown insights mode %q", cfg.Mode)
}
