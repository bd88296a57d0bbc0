package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
)

func TestNewSinkNone(t *testing.T) {
	sink, err := NewSink(context.Background(), config.SinkConfig{})
	require.NoError(t, err)
	assert.Nil(t, sink)
}

func TestNewSinkLocal(t *testing.T) {
	sink, err := NewSink(context.Background(), config.SinkConfig{
		Provider: config.SinkProviderLocal,
		Local:    config.LocalSinkConfig{BasePath: t.TempDir()},
	})
	require.NoError(t, err)
	require.NotNil(t, sink)
	assert.IsType(t, &LocalSink{}, sink)
}

func TestNewSinkInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SinkConfig
	}{
		{
			name: "local without base path",
			cfg:  config.SinkConfig{Provider: config.SinkProviderLocal},
		},
		{
			name: "s3 without bucket",
			cfg:  config.SinkConfig{Provider: config.SinkProviderS3},
		},
		{
			name: "gcs without bucket",
			cfg:  config.SinkConfig{Provider: config.SinkProviderGCS},
		},
		{
			name: "azure without credentials",
			cfg:  config.SinkConfig{Provider: config.SinkProviderAzure},
		},
		{
			name: "unknown provider",
			cfg:  config.SinkConfig{Provider: "ftp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSink(context.Background(), tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestSupportedSinkProviders(t *testing.T) {
	providers := SupportedSinkProviders()
	assert.Contains(t, providers, config.SinkProviderLocal)
	assert.Contains(t, providers, config.SinkProviderS3)
	assert.Contains(t, providers, config.SinkProviderGCS)
	assert.Contains(t, providers, config.SinkProviderAzure)
}
