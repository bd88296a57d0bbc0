package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
)

// GCSSink uploads the finished dump to a Google Cloud Storage bucket
type GCSSink struct {
	client      *storage.Client
	bucket      string
	prefix      string
	deleteLocal bool
}

// NewGCSSink creates a GCS sink
func NewGCSSink(ctx context.Context, cfg config.GCSSinkConfig, deleteLocal bool) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, NewValidationError("gcs sink bucket is required", nil)
	}

	var client *storage.Client
	var err error
	if cfg.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		// Default credentials from environment or metadata server
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, NewSinkExportError("failed to create GCS client", err)
	}

	return &GCSSink{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      normalizePrefix(cfg.Prefix),
		deleteLocal: deleteLocal,
	}, nil
}

// Export uploads the file and returns its gs:// location
func (s *GCSSink) Export(ctx context.Context, localPath string, metadata map[string]string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", NewSinkExportError(fmt.Sprintf("failed to open %s", localPath), err)
	}
	defer file.Close()

	objectName := path.Join(s.prefix, filepath.Base(localPath))

	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = "application/sql"
	if len(metadata) > 0 {
		writer.Metadata = metadata
	}

	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", NewSinkExportError("failed to upload backup to GCS", err)
	}
	if err := writer.Close(); err != nil {
		return "", NewSinkExportError("failed to finalize GCS upload", err)
	}

	if s.deleteLocal {
		if err := os.Remove(localPath); err != nil {
			return "", NewSinkExportError("failed to remove local file after upload", err)
		}
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Close releases the underlying GCS client
func (s *GCSSink) Close() error {
	return s.client.Close()
}
