package filestore

import "time"

// ContentTypeNDJSON is used for newline-delimited JSON exports.
const ContentTypeNDJSON = "application/x-ndjson"

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	Bucket string

	// Key is the full object path within the bucket (e.g. "exports/orders.ndjson").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType string

	// ETag is the object's entity tag as returned by the backend.
	ETag string

	LastModified time.Time
}
