// Package minio provides a MinIO implementation of filestore.Store.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"io"
	"time"

	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client   *miniogo.Client
	region   string
	partSize uint64
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindConfigFailed, "minio endpoint is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigFailed, "failed to create minio client", err)
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = filestore.DefaultPartSize
	}
	d := &Driver{client: client, region: cfg.Region, partSize: partSize}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op: the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return mapError(err, "failed to check bucket")
	}
	if ok {
		return nil
	}

	err = d.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: d.region})
	if err != nil {
		// lost a race with another exporter
		if e := mapError(err, ""); e.Kind == errs.ErrKindConflict {
			return nil
		}
		return mapError(err, "failed to create bucket")
	}
	return nil
}

func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	if key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "object key is required")
	}

	up, err := d.client.PutObject(ctx, bucket, key, r, size, d.putOptions(size, contentType))
	if err != nil {
		return nil, mapError(err, "failed to put object")
	}

	return &filestore.ObjectInfo{
		Bucket:       up.Bucket,
		Key:          up.Key,
		Size:         up.Size,
		ContentType:  contentType,
		ETag:         up.ETag,
		LastModified: up.LastModified,
	}, nil
}

// putOptions bounds the part buffer for streams of unknown size. Left to the
// SDK, a size of -1 allocates a part large enough for a 5TiB object.
func (d *Driver) putOptions(size int64, contentType string) miniogo.PutObjectOptions {
	opts := miniogo.PutObjectOptions{ContentType: contentType}
	if size < 0 {
		opts.PartSize = d.partSize
	}
	return opts
}

// StatObject returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}

	return &filestore.ObjectInfo{
		Bucket:       bucket,
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// PresignGetURL returns a time-limited public download URL for the object.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := d.client.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL")
	}
	return u.String(), nil
}

var _ filestore.Store = (*Driver)(nil)
