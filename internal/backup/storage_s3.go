package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
)

// S3Sink uploads the finished dump to an Amazon S3 bucket
type S3Sink struct {
	client       *s3.S3
	bucket       string
	prefix       string
	storageClass string
	deleteLocal  bool
}

// NewS3Sink creates an S3 sink
func NewS3Sink(cfg config.S3SinkConfig, deleteLocal bool) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, NewValidationError("s3 sink bucket is required", nil)
	}
	if cfg.Region == "" {
		return nil, NewValidationError("s3 sink region is required", nil)
	}

	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewSinkExportError("failed to create AWS session", err)
	}

	storageClass := cfg.StorageClass
	if storageClass == "" {
		storageClass = s3.StorageClassStandard
	}

	return &S3Sink{
		client:       s3.New(sess),
		bucket:       cfg.Bucket,
		prefix:       normalizePrefix(cfg.Prefix),
		storageClass: storageClass,
		deleteLocal:  deleteLocal,
	}, nil
}

// Export uploads the file and returns its s3:// location
func (s *S3Sink) Export(ctx context.Context, localPath string, metadata map[string]string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", NewSinkExportError(fmt.Sprintf("failed to open %s", localPath), err)
	}
	defer file.Close()

	key := path.Join(s.prefix, filepath.Base(localPath))

	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         file,
		ContentType:  aws.String("application/sql"),
		StorageClass: aws.String(s.storageClass),
	}
	if len(metadata) > 0 {
		s3Metadata := make(map[string]*string, len(metadata))
		for k, v := range metadata {
			s3Metadata[k] = aws.String(v)
		}
		input.Metadata = s3Metadata
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", NewSinkExportError("failed to upload backup to S3", err)
	}

	if s.deleteLocal {
		if err := os.Remove(localPath); err != nil {
			return "", NewSinkExportError("failed to remove local file after upload", err)
		}
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func normalizePrefix(prefix string) string {
	return strings.Trim(prefix, "/")
}
