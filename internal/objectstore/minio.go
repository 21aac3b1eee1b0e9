// Package objectstore uploads exports and snapshots to an S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/logging"
)

// ErrNotConfigured is returned when no endpoint or bucket is configured.
var ErrNotConfigured = errors.New("object storage is not configured (set export.endpoint and export.bucket)")

// Uploader stores a stream under a generated object name and returns it.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
}

// MinioClient holds the MinIO client and bucket name.
type MinioClient struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinioClient creates a client for cfg. It does not contact the server;
// call EnsureBucket before the first upload.
func NewMinioClient(cfg config.ExportConfig, logger *slog.Logger) (*MinioClient, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = logging.Discard()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioClient{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Bucket returns the configured bucket name.
func (mc *MinioClient) Bucket() string {
	return mc.bucket
}

// EnsureBucket creates the bucket if it does not exist.
func (mc *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := mc.client.BucketExists(ctx, mc.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket '%s' exists: %w", mc.bucket, err)
	}
	if exists {
		return nil
	}

	mc.logger.Info("creating bucket", "bucket", mc.bucket)
	if err := mc.client.MakeBucket(ctx, mc.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket '%s': %w", mc.bucket, err)
	}
	return nil
}

// Upload stores r under a unique object name derived from filename.
func (mc *MinioClient) Upload(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectName(mc.prefix, filename, time.Now(), uuid.New())

	info, err := mc.client.PutObject(ctx, mc.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload (bucket: %s, object: %s): %w", mc.bucket, objectName, err)
	}

	mc.logger.Info("uploaded object", "object", objectName, "size", info.Size, "etag", info.ETag)
	return objectName, nil
}

// Download copies an object into w.
func (mc *MinioClient) Download(ctx context.Context, objectName string, w io.Writer) error {
	object, err := mc.client.GetObject(ctx, mc.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get object '%s' from bucket '%s': %w", objectName, mc.bucket, err)
	}
	defer object.Close()

	if _, err := io.Copy(w, object); err != nil {
		return fmt.Errorf("failed to read object '%s': %w", objectName, err)
	}
	return nil
}

// UploadFile uploads a local file with the given content type.
func UploadFile(ctx context.Context, u Uploader, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}
	return u.Upload(ctx, filepath.Base(localPath), f, info.Size(), contentType)
}

// ObjectName builds "<prefix>/<stem>-<UTC timestamp>-<id><ext>". Object
// names always use forward slashes.
func ObjectName(prefix, filename string, now time.Time, id uuid.UUID) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if strings.HasSuffix(base, ".json.gz") {
		ext = ".json.gz"
	}
	stem := strings.TrimSuffix(base, ext)
	if stem == "" || stem == "." {
		stem = "dotmotion"
	}

	name := fmt.Sprintf("%s-%s-%s%s", stem, now.UTC().Format("20060102T150405Z"), id.String(), ext)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
