// Package storage provides durable object storage for generated media.
// The BlobStore contract is implemented by MinIO (production) and an
// in-memory store (tests).
package storage

import (
	"context"
	"io"
)

// BlobStore stores and serves generated media blobs.
type BlobStore interface {
	// Upload writes the object and returns its public URL.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Download copies the object's bytes to w.
	Download(ctx context.Context, key string, w io.Writer) error

	// Remove deletes the object. Removing an absent object is a no-op.
	Remove(ctx context.Context, key string) error
}
