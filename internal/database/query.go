package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlbridge/internal/errs"
)

// Dialect controls which placeholder and identifier quoting style the
// query builder emits.
type Dialect int

const (
	// DialectANSI uses ? placeholders and "double-quoted" identifiers (SQLite).
	DialectANSI Dialect = iota

	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres

	// DialectMySQL uses ? placeholders and `backtick` identifiers.
	DialectMySQL
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	default:
		return "ansi"
	}
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// The operator position cannot be parameterized.
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// TableQuery builds a parameterized SELECT over a single table. It backs
// the table preview of the CLI and the HTTP gateway. Values are never
// interpolated into the SQL string.
//
// Usage:
//
//	sql, args, err := From("orders", DialectPostgres).
//	    Columns("id", "total").
//	    Where("status", "=", "open").
//	    OrderBy("id", Desc).
//	    Limit(20).
//	    Build()
type TableQuery struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// From starts a TableQuery for table in dialect d.
func From(table string, d Dialect) *TableQuery {
	return &TableQuery{table: table, dialect: d}
}

// Columns restricts the SELECT to cols. Without it, SELECT * is used.
func (q *TableQuery) Columns(cols ...string) *TableQuery {
	q.columns = cols
	return q
}

// Where adds a condition; multiple calls are combined with AND.
func (q *TableQuery) Where(column, op string, value any) *TableQuery {
	q.where = append(q.where, whereClause{column, op, value})
	return q
}

func (q *TableQuery) OrderBy(column string, dir SortDirection) *TableQuery {
	q.orderBy = append(q.orderBy, orderClause{column, dir})
	return q
}

func (q *TableQuery) Limit(n int) *TableQuery {
	q.limit = &n
	return q
}

func (q *TableQuery) Offset(n int) *TableQuery {
	q.offset = &n
	return q
}

// Build produces the SQL string and its arguments. It fails with
// ErrKindInvalidInput on an empty table name, a negative limit or offset,
// or a WHERE operator outside the allowlist.
func (q *TableQuery) Build() (string, []any, error) {
	if strings.TrimSpace(q.table) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}

	cols := "*"
	if len(q.columns) > 0 {
		quoted := make([]string, len(q.columns))
		for i, c := range q.columns {
			quoted[i] = q.quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(q.quote(q.table))

	var args []any

	if len(q.where) > 0 {
		parts := make([]string, 0, len(q.where))
		for _, w := range q.where {
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return "", nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported WHERE operator: %q", w.op))
			}
			if op == "ILIKE" && q.dialect != DialectPostgres {
				return "", nil, errs.New(errs.ErrKindInvalidInput, "ILIKE is only supported by postgres")
			}
			args = append(args, w.value)
			parts = append(parts, fmt.Sprintf("%s %s %s", q.quote(w.column), op, q.placeholder(len(args))))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(q.orderBy) > 0 {
		parts := make([]string, len(q.orderBy))
		for i, o := range q.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = q.quote(o.column) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if q.limit != nil {
		if *q.limit < 0 {
			return "", nil, errs.New(errs.ErrKindInvalidInput, "limit must not be negative")
		}
		args = append(args, *q.limit)
		sb.WriteString(" LIMIT " + q.placeholder(len(args)))
	}

	if q.offset != nil {
		if *q.offset < 0 {
			return "", nil, errs.New(errs.ErrKindInvalidInput, "offset must not be negative")
		}
		// MySQL and SQLite only accept OFFSET after a LIMIT
		if q.limit == nil {
			switch q.dialect {
			case DialectMySQL:
				return "", nil, errs.New(errs.ErrKindInvalidInput, "offset requires a limit on mysql")
			case DialectANSI:
				sb.WriteString(" LIMIT -1")
			}
		}
		args = append(args, *q.offset)
		sb.WriteString(" OFFSET " + q.placeholder(len(args)))
	}

	return sb.String(), args, nil
}

// placeholder returns the parameter placeholder for the 1-based index idx.
func (q *TableQuery) placeholder(idx int) string {
	if q.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// quote wraps an identifier for the dialect. A dotted name is quoted per
// part, so "sales.orders" addresses a table in another schema.
func (q *TableQuery) quote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if q.dialect == DialectMySQL {
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		} else {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}
