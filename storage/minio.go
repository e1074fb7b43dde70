package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures the MinIO-backed blob store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBaseURL is the externally reachable base for object URLs
	// (e.g. a CDN front). Empty falls back to the endpoint.
	PublicBaseURL string
}

// MinIO implements BlobStore on a MinIO (or any S3-compatible) bucket.
type MinIO struct {
	client *minio.Client
	cfg    MinIOConfig
	logger *slog.Logger
}

// NewMinIO connects to MinIO and ensures the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig, logger *slog.Logger) (*MinIO, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created bucket", slog.String("bucket", cfg.Bucket))
	}

	return &MinIO{client: client, cfg: cfg, logger: logger}, nil
}

// Upload writes the object and returns its public URL.
func (m *MinIO) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return m.URL(key), nil
}

// Download copies the object's bytes to w.
func (m *MinIO) Download(ctx context.Context, key string, w io.Writer) error {
	obj, err := m.client.GetObject(ctx, m.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer obj.Close()

	if _, err := io.Copy(w, obj); err != nil {
		return fmt.Errorf("storage: download %s: %w", key, err)
	}
	return nil
}

// Remove deletes the object. Absent objects are a no-op.
func (m *MinIO) Remove(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.cfg.Bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL for an object key.
func (m *MinIO) URL(key string) string {
	base := m.cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if m.cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, m.cfg.Endpoint, m.cfg.Bucket)
	}
	return base + "/" + key
}
