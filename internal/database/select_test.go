package database_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/koustreak/sqlbridge/internal/database"
	_ "github.com/koustreak/sqlbridge/internal/database/sqlite"
	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/koustreak/sqlbridge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int64
	Name string
}

func bindItems(_ any, cols []database.Column) (database.ScanFunc[item], error) {
	if len(cols) != 2 {
		return nil, fmt.Errorf("want 2 columns, got %d", len(cols))
	}
	return func(r *item) []any { return []any{&r.ID, &r.Name} }, nil
}

// openItems connects a session to a fresh SQLite file holding n items.
func openItems(t *testing.T, n int) *database.Session {
	t.Helper()
	src := database.Source{
		Name:       "local",
		Driver:     "sqlite",
		Connection: filepath.Join(t.TempDir(), "items.db"),
	}
	mgr, err := database.NewManager(nil, []database.Source{src}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	sess := database.NewSession(mgr, logger.Nop())
	require.NoError(t, sess.Connect(context.Background(), "local", "", "", "owner"))
	t.Cleanup(func() { _ = sess.Disconnect() })

	ctx := context.Background()
	_, err = sess.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		affected, err := sess.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, i, fmt.Sprintf("item-%d", i))
		require.NoError(t, err)
		require.Equal(t, int64(1), affected)
	}
	return sess
}

type seenBatch struct {
	index   int
	fetched int
	ids     []int64
	status  []database.RowStatus
}

func TestSelect_Batches(t *testing.T) {
	sess := openItems(t, 5)

	var batches []seenBatch
	var owners []any
	var options []int

	sum, err := database.Select(context.Background(), sess, database.Request[item]{
		Query: `SELECT id, name FROM items ORDER BY id`,
		Bind:  bindItems,
		Handle: func(owner any, b *database.Batch[item], option int) bool {
			sb := seenBatch{index: b.Index, fetched: b.Fetched, status: append([]database.RowStatus(nil), b.Status...)}
			for i := 0; i < b.Fetched; i++ {
				sb.ids = append(sb.ids, b.Records[i].ID)
			}
			batches = append(batches, sb)
			owners = append(owners, owner)
			options = append(options, option)
			return true
		},
		Option:    7,
		BatchSize: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, database.Summary{Batches: 3, Rows: 5, Accepted: 3}, sum)
	require.Len(t, batches, 3)
	assert.Equal(t, []int64{1, 2}, batches[0].ids)
	assert.Equal(t, []int64{3, 4}, batches[1].ids)
	assert.Equal(t, []int64{5}, batches[2].ids)
	assert.Equal(t, 2, batches[2].index)
	assert.Equal(t, []database.RowStatus{database.RowSuccess, database.RowNoRow}, batches[2].status)
	assert.Equal(t, []any{"owner", "owner", "owner"}, owners)
	assert.Equal(t, []int{7, 7, 7}, options)
}

func TestSelect_DeclinedBatchesDoNotStopTheLoop(t *testing.T) {
	sess := openItems(t, 3)

	calls := 0
	sum, err := database.Select(context.Background(), sess, database.Request[item]{
		Query:     `SELECT id, name FROM items`,
		Bind:      bindItems,
		Handle:    func(any, *database.Batch[item], int) bool { calls++; return false },
		BatchSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, sum.Batches)
	assert.Zero(t, sum.Accepted)
}

func TestSelect_EmptyResultIsNotFound(t *testing.T) {
	sess := openItems(t, 0)

	calls := 0
	sum, err := database.Select(context.Background(), sess, database.Request[item]{
		Query:  `SELECT id, name FROM items`,
		Bind:   bindItems,
		Handle: func(any, *database.Batch[item], int) bool { calls++; return true },
	})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, errs.StatusFailed, errs.Status(err))
	assert.Zero(t, calls)
	assert.Zero(t, sum.Batches)
}

func TestSelect_ScanFailureMarksRow(t *testing.T) {
	sess := openItems(t, 2)
	ctx := context.Background()

	// SQLite keeps the text in an INTEGER column that has no PRIMARY KEY constraint
	_, err := sess.Exec(ctx, `CREATE TABLE loose (id INTEGER, name TEXT)`)
	require.NoError(t, err)
	_, err = sess.Exec(ctx, `INSERT INTO loose VALUES (1, 'a'), ('oops', 'b'), (3, 'c')`)
	require.NoError(t, err)

	var status []database.RowStatus
	sum, err := database.Select(ctx, sess, database.Request[item]{
		Query: `SELECT id, name FROM loose ORDER BY rowid`,
		Bind:  bindItems,
		Handle: func(_ any, b *database.Batch[item], _ int) bool {
			status = append(status, b.Status[:b.Fetched]...)
			return true
		},
		BatchSize: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 3, sum.Rows)
	assert.Equal(t, []database.RowStatus{database.RowSuccess, database.RowError, database.RowSuccess}, status)
}

func TestSelect_OversizedBatchIsClamped(t *testing.T) {
	sess := openItems(t, 3)

	var width int
	sum, err := database.Select(context.Background(), sess, database.Request[item]{
		Query: `SELECT id, name FROM items`,
		Bind:  bindItems,
		Handle: func(_ any, b *database.Batch[item], _ int) bool {
			width = len(b.Records)
			return true
		},
		BatchSize: 1 << 42,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Batches)
	assert.Equal(t, database.MaxBatchSize, width)
}

func TestSelect_BindFailure(t *testing.T) {
	sess := openItems(t, 1)

	_, err := database.Select(context.Background(), sess, database.Request[item]{
		Query: `SELECT id FROM items`,
		Bind:  bindItems,
		Handle: func(any, *database.Batch[item], int) bool {
			t.Fatal("handler must not run")
			return false
		},
	})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestSelect_BadStatement(t *testing.T) {
	sess := openItems(t, 1)

	_, err := database.Select(context.Background(), sess, database.Request[database.Row]{
		Query:  `SELECT * FROM nowhere`,
		Bind:   database.BindRows(),
		Handle: func(any, *database.Batch[database.Row], int) bool { return true },
	})
	assert.True(t, errs.IsQueryFailed(err))
}

func TestSelect_BindRowsAndDefaultBatchSize(t *testing.T) {
	sess := openItems(t, 2)

	var got []map[string]any
	sum, err := database.Select(context.Background(), sess, database.Request[database.Row]{
		Query: `SELECT id, name FROM items ORDER BY id`,
		Bind:  database.BindRows(),
		Handle: func(_ any, b *database.Batch[database.Row], _ int) bool {
			got = append(got, database.Rows(b)...)
			return true
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Batches, "default batch size is one row")
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "item-1"},
		{"id": int64(2), "name": "item-2"},
	}, got)
}

func TestExec_ConstraintViolation(t *testing.T) {
	sess := openItems(t, 1)

	_, err := sess.Exec(context.Background(), `INSERT INTO items (id, name) VALUES (1, 'dup')`)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err), "got %v", err)

	var e *errs.Error
	assert.True(t, errors.As(err, &e))
}

func TestSession_Reconnect(t *testing.T) {
	sess := openItems(t, 1)
	ctx := context.Background()

	require.NoError(t, sess.Ping(ctx))
	require.NoError(t, sess.Connect(ctx, "local", "", "", "second"))
	assert.Equal(t, "second", sess.Owner())
	assert.True(t, sess.Connected())
}

func TestManager_StaleHandleAfterClose(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.Pooling = database.PoolingOnePerDriver
	src := database.Source{Name: "local", Driver: "sqlite", Connection: filepath.Join(t.TempDir(), "shared.db")}
	mgr, err := database.NewManager(cfg, []database.Source{src}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	ctx := context.Background()
	first := database.NewSession(mgr, logger.Nop())
	require.NoError(t, first.Connect(ctx, "local", "", "", "first"))
	require.NoError(t, mgr.Close())

	second := database.NewSession(mgr, logger.Nop())
	require.NoError(t, second.Connect(ctx, "local", "", "", "second"))
	t.Cleanup(func() { _ = second.Disconnect() })

	require.NoError(t, first.Disconnect())
	assert.Equal(t, 1, mgr.OpenPools(), "the reopened pool stays open")
	assert.NoError(t, second.Ping(ctx))
}
