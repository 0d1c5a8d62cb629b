package database

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/koustreak/sqlbridge/internal/errs"
)

// Column describes one column of a result set.
type Column struct {
	Name         string
	DatabaseType string       // engine type name, e.g. "VARCHAR", "int4"
	ScanType     reflect.Type // Go type the driver scans into by default
	Nullable     bool         // false when the driver cannot tell
}

// RowStatus is the per-row outcome of a fetch step.
type RowStatus uint8

const (
	// RowNoRow marks a slot past the end of the fetched rows.
	RowNoRow RowStatus = iota
	// RowSuccess marks a row that was fetched and scanned.
	RowSuccess
	// RowError marks a row that was fetched but could not be scanned.
	RowError
)

func (s RowStatus) String() string {
	switch s {
	case RowSuccess:
		return "success"
	case RowError:
		return "error"
	default:
		return "no_row"
	}
}

// ScanFunc returns the scan destinations for one record, in column order.
type ScanFunc[T any] func(rec *T) []any

// BindFunc maps the result columns onto the record type T. Select calls it
// once, after the statement has executed and before the first fetch.
type BindFunc[T any] func(owner any, cols []Column) (ScanFunc[T], error)

// BatchFunc receives each fetched batch. Its result is logged and does not
// stop the fetch loop. The batch buffers are reused for the next step, so
// anything kept must be copied.
type BatchFunc[T any] func(owner any, b *Batch[T], option int) bool

// Batch is one fetch step of a Select.
type Batch[T any] struct {
	Index   int         // 0-based batch number
	Records []T         // len == batch size; only the first Fetched entries are meaningful
	Status  []RowStatus // len == batch size
	Fetched int         // rows fetched in this step
}

func (b *Batch[T]) reset() {
	var zero T
	for i := range b.Records {
		b.Records[i] = zero
		b.Status[i] = RowNoRow
	}
	b.Fetched = 0
}

// Request describes a Select: the statement, how to bind its columns, and
// what to do with each batch.
type Request[T any] struct {
	Query  string
	Args   []any
	Bind   BindFunc[T]
	Handle BatchFunc[T]

	// Option is passed through unchanged to every Handle call.
	Option int

	// BatchSize is the number of rows per fetch step. Zero or negative uses
	// the manager's Config.BatchSize. Either is capped at MaxBatchSize.
	BatchSize int
}

// Summary reports what a Select fetched.
type Summary struct {
	Batches  int // fetch steps delivered to Handle
	Rows     int // rows fetched, including rejected ones
	Rejected int // rows marked RowError
	Accepted int // batches for which Handle returned true
}

// Select executes a query and streams its result set to req.Handle in
// batches of req.BatchSize rows. A query that yields no rows returns an
// ErrKindNotFound error.
//
// Callbacks run while the session is locked and must not call back into s.
func Select[T any](ctx context.Context, s *Session, req Request[T]) (Summary, error) {
	var sum Summary
	if req.Bind == nil || req.Handle == nil {
		return sum, errs.New(errs.ErrKindInvalidInput, "select requires both a bind and a batch callback")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return sum, errNotConnected()
	}

	h := s.handle
	log := s.log.With().Str("source", h.source.Name).Logger()

	size := req.BatchSize
	if size <= 0 {
		size = s.mgr.cfg.BatchSize
	}
	if size <= 0 {
		size = 1
	}
	if size > MaxBatchSize {
		size = MaxBatchSize
	}

	ctx, cancel := context.WithTimeout(ctx, s.mgr.cfg.QueryTimeout)
	defer cancel()

	rows, err := h.db.QueryContext(ctx, req.Query, req.Args...)
	if err != nil {
		e := mapError(h.driver, err, "query failed")
		log.WarnWith("select failed", e, nil)
		return sum, e
	}
	defer rows.Close()
	log.Debug("select executed")

	cts, err := rows.ColumnTypes()
	if err != nil {
		return sum, mapError(h.driver, err, "failed to read result columns")
	}

	scan, err := req.Bind(s.owner, toColumns(cts))
	if err != nil {
		return sum, errs.Wrap(errs.ErrKindInvalidInput, "failed to bind result columns", err)
	}
	if scan == nil {
		return sum, errs.New(errs.ErrKindInvalidInput, "bind returned no scan function")
	}

	batch := &Batch[T]{
		Records: make([]T, size),
		Status:  make([]RowStatus, size),
	}

	for more := true; more; {
		batch.reset()
		for batch.Fetched < size {
			if !rows.Next() {
				more = false
				break
			}
			i := batch.Fetched
			if err := rows.Scan(scan(&batch.Records[i])...); err != nil {
				var zero T
				batch.Records[i] = zero
				batch.Status[i] = RowError
				sum.Rejected++
				log.DebugWith("row scan failed", map[string]interface{}{"batch": sum.Batches, "row": i, "error": err.Error()})
			} else {
				batch.Status[i] = RowSuccess
			}
			batch.Fetched++
		}
		if batch.Fetched == 0 {
			break
		}

		batch.Index = sum.Batches
		sum.Rows += batch.Fetched
		if req.Handle(s.owner, batch, req.Option) {
			sum.Accepted++
			log.DebugWith("batch handled", map[string]interface{}{"batch": batch.Index, "rows": batch.Fetched})
		} else {
			log.DebugWith("batch handler declined", map[string]interface{}{"batch": batch.Index, "rows": batch.Fetched})
		}
		sum.Batches++
	}

	if err := rows.Err(); err != nil {
		e := mapError(h.driver, err, "error during row iteration")
		log.WarnWith("select aborted", e, map[string]interface{}{"batches": sum.Batches})
		return sum, e
	}

	if sum.Batches == 0 {
		log.Debug("no records")
		return sum, errs.New(errs.ErrKindNotFound, "no records")
	}

	log.DebugWith("select done", map[string]interface{}{
		"batches":  sum.Batches,
		"rows":     sum.Rows,
		"rejected": sum.Rejected,
	})
	return sum, nil
}

func toColumns(cts []*sql.ColumnType) []Column {
	cols := make([]Column, len(cts))
	for i, ct := range cts {
		nullable, _ := ct.Nullable()
		cols[i] = Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			ScanType:     ct.ScanType(),
			Nullable:     nullable,
		}
	}
	return cols
}
