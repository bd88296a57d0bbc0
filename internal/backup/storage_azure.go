package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
)

// AzureSink uploads the finished dump to an Azure Blob Storage container
type AzureSink struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
	deleteLocal   bool
}

// NewAzureSink creates an Azure Blob Storage sink
func NewAzureSink(cfg config.AzureSinkConfig, deleteLocal bool) (*AzureSink, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" || cfg.ContainerName == "" {
		return nil, NewValidationError("azure sink requires account name, key and container", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, NewSinkExportError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, NewSinkExportError("failed to parse Azure service URL", err)
	}

	container := azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(cfg.ContainerName)

	return &AzureSink{
		containerURL:  container,
		containerName: cfg.ContainerName,
		prefix:        normalizePrefix(cfg.Prefix),
		deleteLocal:   deleteLocal,
	}, nil
}

// Export uploads the file and returns its azure:// location
func (s *AzureSink) Export(ctx context.Context, localPath string, metadata map[string]string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", NewSinkExportError(fmt.Sprintf("failed to open %s", localPath), err)
	}
	defer file.Close()

	blobName := path.Join(s.prefix, filepath.Base(localPath))
	blobURL := s.containerURL.NewBlockBlobURL(blobName)

	options := azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: "application/sql"},
	}
	if len(metadata) > 0 {
		options.Metadata = azblob.Metadata(metadata)
	}

	if _, err := azblob.UploadFileToBlockBlob(ctx, file, blobURL, options); err != nil {
		return "", NewSinkExportError("failed to upload backup to Azure", err)
	}

	if s.deleteLocal {
		if err := os.Remove(localPath); err != nil {
			return "", NewSinkExportError("failed to remove local file after upload", err)
		}
	}

	return fmt.Sprintf("azure://%s/%s", s.containerName, blobName), nil
}
