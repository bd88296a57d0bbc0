package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
)

// LocalSink copies the finished dump into a base directory
type LocalSink struct {
	basePath    string
	permissions os.FileMode
	deleteLocal bool
}

// NewLocalSink creates a local directory sink
func NewLocalSink(cfg config.LocalSinkConfig, deleteLocal bool) (*LocalSink, error) {
	if cfg.BasePath == "" {
		return nil, NewValidationError("local sink base path is required", nil)
	}

	perms := cfg.Permissions
	if perms == 0 {
		perms = 0o755
	}

	if err := os.MkdirAll(cfg.BasePath, perms); err != nil {
		return nil, NewSinkExportError("failed to create sink directory", err)
	}

	return &LocalSink{
		basePath:    cfg.BasePath,
		permissions: perms,
		deleteLocal: deleteLocal,
	}, nil
}

// Export copies the file into the base directory and returns the destination
// path. The source may have been produced by anyone; only readability is
// assumed.
func (s *LocalSink) Export(ctx context.Context, localPath string, metadata map[string]string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", NewSinkExportError(fmt.Sprintf("failed to open %s", localPath), err)
	}
	defer src.Close()

	destPath := filepath.Join(s.basePath, filepath.Base(localPath))
	if sameFile(localPath, destPath) {
		return destPath, nil
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return "", NewSinkExportError(fmt.Sprintf("failed to create %s", destPath), err)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(destPath)
		return "", NewSinkExportError("failed to copy backup file", err)
	}
	if err := dest.Close(); err != nil {
		return "", NewSinkExportError("failed to finalize backup copy", err)
	}

	if s.deleteLocal {
		if err := os.Remove(localPath); err != nil {
			return "", NewSinkExportError("failed to remove local file after export", err)
		}
	}

	return destPath, nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
