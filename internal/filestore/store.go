// Package filestore defines the object storage sink that query exports
// are written to.
//
// Callers depend only on this package. The MinIO implementation lives in
// the minio subpackage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.PutObject(ctx, "exports", "orders.ndjson", r, -1, filestore.ContentTypeNDJSON)
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the interface every object storage provider implements.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// EnsureBucket creates bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads r to key inside bucket. A size of -1 streams
	// content of unknown length.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// StatObject returns metadata for the object at key without
	// downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PresignGetURL returns a time-limited download URL for the object.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
