package filestore

// DefaultPartSize is the multipart chunk used for uploads of unknown length,
// the smallest part size S3 accepts. The upload buffers one part in memory.
const DefaultPartSize uint64 = 16 << 20

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// DefaultBucket receives exports that do not name a bucket.
	DefaultBucket string

	// PartSize is the multipart chunk for streamed uploads. Zero uses DefaultPartSize.
	PartSize uint64
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:      ProviderMinIO,
		Endpoint:      endpoint,
		AccessKey:     accessKey,
		SecretKey:     secretKey,
		UseSSL:        false,
		DefaultBucket: "exports",
		PartSize:      DefaultPartSize,
	}
}

// Bucket returns bucket, or DefaultBucket when bucket is empty.
func (c *Config) Bucket(bucket string) string {
	if bucket != "" {
		return bucket
	}
	return c.DefaultBucket
}
