// Package export streams the result set of a query into object storage as
// newline-delimited JSON, one object per row.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/filestore"
	"github.com/koustreak/sqlbridge/internal/logger"
)

// Job describes one export.
type Job struct {
	Query string
	Args  []any

	// Bucket defaults to the exporter's bucket when empty.
	Bucket string
	Key    string

	// BatchSize is forwarded to database.Select.
	BatchSize int

	// PresignTTL, when positive, adds a download URL to the result.
	PresignTTL time.Duration
}

// Result reports where the rows went and how many there were.
type Result struct {
	Object  *filestore.ObjectInfo
	Summary database.Summary
	Written int    // rows encoded into the object
	URL     string
}

// Exporter writes query results to a filestore.Store.
type Exporter struct {
	store  filestore.Store
	bucket string
	log    *logger.Logger
}

func New(store filestore.Store, defaultBucket string, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{store: store, bucket: defaultBucket, log: log.Component("export")}
}

// Run executes job.Query on sess and uploads the rows while they are
// fetched. Rows that fail to scan are skipped. A query without rows
// returns the ErrKindNotFound error of database.Select and uploads nothing.
func (e *Exporter) Run(ctx context.Context, sess *database.Session, job Job) (*Result, error) {
	bucket := job.Bucket
	if bucket == "" {
		bucket = e.bucket
	}
	if bucket == "" || job.Key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "export requires a bucket and an object key")
	}
	if job.Query == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "export requires a query")
	}

	log := e.log.With().Str("bucket", bucket).Str("key", job.Key).Logger()

	if err := e.store.EnsureBucket(ctx, bucket); err != nil {
		log.WarnWith("bucket unavailable", err, nil)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	res := &Result{}
	done := make(chan error, 1)

	go func() {
		enc := json.NewEncoder(pw)
		var writeErr error
		sum, err := database.Select(ctx, sess, database.Request[database.Row]{
			Query:     job.Query,
			Args:      job.Args,
			Bind:      database.BindRows(),
			BatchSize: job.BatchSize,
			Handle: func(_ any, b *database.Batch[database.Row], _ int) bool {
				if writeErr != nil {
					return false
				}
				for _, row := range database.Rows(b) {
					if writeErr = enc.Encode(row); writeErr != nil {
						return false
					}
					res.Written++
				}
				return true
			},
		})
		res.Summary = sum
		if err == nil && writeErr != nil {
			err = errs.Wrap(errs.ErrKindQueryFailed, "failed to encode rows", writeErr)
		}
		// report before closing so the reader sees the select error first
		done <- err
		// a failed select aborts the upload instead of completing a partial object
		pw.CloseWithError(err)
	}()

	info, putErr := e.store.PutObject(ctx, bucket, job.Key, pr, -1, filestore.ContentTypeNDJSON)
	if putErr != nil {
		var selErr error
		select {
		case selErr = <-done:
		default:
			// the upload gave up on its own; stop the select and unblock its writer
			cancel()
			pr.CloseWithError(io.ErrClosedPipe)
			<-done
		}
		if selErr != nil && !errors.Is(selErr, io.ErrClosedPipe) {
			log.WarnWith("export failed", selErr, map[string]interface{}{"rows": res.Written})
			return nil, selErr
		}
		log.WarnWith("upload failed", putErr, map[string]interface{}{"rows": res.Written})
		return nil, putErr
	}
	if selErr := <-done; selErr != nil {
		log.WarnWith("export failed", selErr, map[string]interface{}{"rows": res.Written})
		return nil, selErr
	}
	res.Object = info

	if job.PresignTTL > 0 {
		u, err := e.store.PresignGetURL(ctx, bucket, job.Key, job.PresignTTL)
		if err != nil {
			return nil, err
		}
		res.URL = u
	}

	log.InfoWith("export done", map[string]interface{}{
		"rows":     res.Written,
		"batches":  res.Summary.Batches,
		"rejected": res.Summary.Rejected,
	})
	return res, nil
}
