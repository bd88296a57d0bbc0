package backup

import (
	"context"
	"fmt"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
)

// NewSink builds the export sink selected by the configuration. A provider
// of "" means no sink: the dump stays wherever the caller wrote it.
func NewSink(ctx context.Context, cfg config.SinkConfig) (ExportSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError("invalid sink configuration", err)
	}

	switch cfg.Provider {
	case config.SinkProviderNone:
		return nil, nil

	case config.SinkProviderLocal:
		return NewLocalSink(cfg.Local, cfg.DeleteLocal)

	case config.SinkProviderS3:
		return NewS3Sink(cfg.S3, cfg.DeleteLocal)

	case config.SinkProviderGCS:
		return NewGCSSink(ctx, cfg.GCS, cfg.DeleteLocal)

	case config.SinkProviderAzure:
		return NewAzureSink(cfg.Azure, cfg.DeleteLocal)

	default:
		return nil, NewConfigurationError(
			fmt.Sprintf("unsupported sink provider: %s", cfg.Provider), nil)
	}
}

// SupportedSinkProviders lists the selectable providers
func SupportedSinkProviders() []config.SinkProvider {
	return []config.SinkProvider{
		config.SinkProviderLocal,
		config.SinkProviderS3,
		config.SinkProviderGCS,
		config.SinkProviderAzure,
	}
}
