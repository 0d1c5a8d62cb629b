package export_test

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/sqlbridge/internal/database"
	_ "github.com/koustreak/sqlbridge/internal/database/sqlite"
	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/export"
	"github.com/koustreak/sqlbridge/internal/filestore"
	"github.com/koustreak/sqlbridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory filestore.Store.
type memStore struct {
	mu        sync.Mutex
	buckets   map[string]bool
	objects   map[string]string
	putErr    error
	bucketErr error
}

func newMemStore() *memStore {
	return &memStore{buckets: map[string]bool{}, objects: map[string]string{}}
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) EnsureBucket(_ context.Context, bucket string) error {
	if m.bucketErr != nil {
		return m.bucketErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	return nil
}

func (m *memStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) (*filestore.ObjectInfo, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "upload aborted", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = string(b)
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(b)), ContentType: contentType}, nil
}

func (m *memStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(body))}, nil
}

func (m *memStore) PresignGetURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("http://store/%s/%s?ttl=%s", bucket, key, ttl), nil
}

func openSession(t *testing.T, rows int) *database.Session {
	t.Helper()
	src := database.Source{Name: "local", Driver: "sqlite", Connection: filepath.Join(t.TempDir(), "export.db")}
	mgr, err := database.NewManager(nil, []database.Source{src}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	sess := database.NewSession(mgr, logger.Nop())
	ctx := context.Background()
	require.NoError(t, sess.Connect(ctx, "local", "", "", nil))
	t.Cleanup(func() { _ = sess.Disconnect() })

	_, err = sess.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	for i := 1; i <= rows; i++ {
		_, err = sess.Exec(ctx, `INSERT INTO items VALUES (?, ?)`, i, fmt.Sprintf("item-%d", i))
		require.NoError(t, err)
	}
	return sess
}

func TestRun_WritesNDJSON(t *testing.T) {
	sess := openSession(t, 3)
	store := newMemStore()
	exp := export.New(store, "exports", logger.Nop())

	res, err := exp.Run(context.Background(), sess, export.Job{
		Query:      `SELECT id, name FROM items ORDER BY id`,
		Key:        "items.ndjson",
		BatchSize:  2,
		PresignTTL: time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 2, res.Summary.Batches)
	assert.Equal(t, "exports", res.Object.Bucket)
	assert.Equal(t, filestore.ContentTypeNDJSON, res.Object.ContentType)
	assert.Equal(t, "http://store/exports/items.ndjson?ttl=1m0s", res.URL)
	assert.True(t, store.buckets["exports"])

	lines := strings.Split(strings.TrimSpace(store.objects["exports/items.ndjson"]), "\n")
	assert.Equal(t, []string{
		`{"id":1,"name":"item-1"}`,
		`{"id":2,"name":"item-2"}`,
		`{"id":3,"name":"item-3"}`,
	}, lines)
}

func TestRun_ExplicitBucket(t *testing.T) {
	sess := openSession(t, 1)
	store := newMemStore()

	res, err := export.New(store, "exports", nil).Run(context.Background(), sess, export.Job{
		Query:  `SELECT name FROM items WHERE id = ?`,
		Args:   []any{1},
		Bucket: "nightly",
		Key:    "one.ndjson",
	})
	require.NoError(t, err)
	assert.Empty(t, res.URL)
	assert.Equal(t, "{\"name\":\"item-1\"}\n", store.objects["nightly/one.ndjson"])
}

func TestRun_EmptyResultUploadsNothing(t *testing.T) {
	sess := openSession(t, 0)
	store := newMemStore()

	_, err := export.New(store, "exports", nil).Run(context.Background(), sess, export.Job{
		Query: `SELECT id FROM items`,
		Key:   "empty.ndjson",
	})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err), "got %v", err)
	assert.Empty(t, store.objects)
}

func TestRun_QueryFailureUploadsNothing(t *testing.T) {
	sess := openSession(t, 1)
	store := newMemStore()

	_, err := export.New(store, "exports", nil).Run(context.Background(), sess, export.Job{
		Query: `SELECT * FROM missing`,
		Key:   "bad.ndjson",
	})
	assert.True(t, errs.IsQueryFailed(err), "got %v", err)
	assert.Empty(t, store.objects)
}

func TestRun_UploadFailure(t *testing.T) {
	sess := openSession(t, 50)
	store := newMemStore()
	store.putErr = errs.New(errs.ErrKindPermissionDenied, "access denied")

	_, err := export.New(store, "exports", nil).Run(context.Background(), sess, export.Job{
		Query:     `SELECT id FROM items`,
		Key:       "denied.ndjson",
		BatchSize: 5,
	})
	assert.True(t, errs.IsPermissionDenied(err), "got %v", err)
	assert.True(t, sess.Connected(), "session stays usable after a failed upload")
}

func TestRun_UploadFailureStopsTheSelect(t *testing.T) {
	sess := openSession(t, 0)
	store := newMemStore()
	store.putErr = errs.New(errs.ErrKindPermissionDenied, "access denied")

	start := time.Now()
	_, err := export.New(store, "exports", nil).Run(context.Background(), sess, export.Job{
		// never ends on its own; only cancellation or the query timeout stops it
		Query:     `WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n) SELECT x FROM n`,
		Key:       "endless.ndjson",
		BatchSize: 10,
	})
	assert.True(t, errs.IsPermissionDenied(err), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoError(t, sess.Ping(context.Background()), "session lock is released")
}

func TestRun_BucketFailure(t *testing.T) {
	sess := openSession(t, 1)
	store := newMemStore()
	store.bucketErr = errs.New(errs.ErrKindConnectionFailed, "unreachable")

	_, err := export.New(store, "exports", nil).Run(context.Background(), sess, export.Job{
		Query: `SELECT id FROM items`,
		Key:   "k",
	})
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestRun_InvalidJob(t *testing.T) {
	sess := openSession(t, 1)
	exp := export.New(newMemStore(), "", nil)

	tests := []struct {
		name string
		job  export.Job
	}{
		{"no bucket", export.Job{Query: "SELECT 1", Key: "k"}},
		{"no key", export.Job{Query: "SELECT 1", Bucket: "b"}},
		{"no query", export.Job{Bucket: "b", Key: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exp.Run(context.Background(), sess, tt.job)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}
