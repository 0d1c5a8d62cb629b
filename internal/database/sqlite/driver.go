// Package sqlite registers the "sqlite" engine, backed by the pure-Go
// modernc.org/sqlite driver. Import it for its side effect:
//
//	import _ "github.com/koustreak/sqlbridge/internal/database/sqlite"
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/sqlbridge/internal/database"
	"github.com/koustreak/sqlbridge/internal/errs"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver is the database.Driver for SQLite files.
type Driver struct{}

func init() {
	database.Register(Driver{})
}

func (Driver) Name() string              { return "sqlite" }
func (Driver) SQLDriver() string         { return "sqlite" }
func (Driver) Dialect() database.Dialect { return database.DialectANSI }

// BuildDSN uses the source connection as the database path. Credentials are
// ignored. Each option becomes a _pragma parameter, e.g. busy_timeout=5000
// becomes _pragma=busy_timeout(5000).
func (Driver) BuildDSN(src database.Source, _, _ string) (string, error) {
	path := strings.TrimSpace(src.Connection)
	if path == "" {
		return "", fmt.Errorf("sqlite source %q has no database path", src.Name)
	}
	if len(src.Options) == 0 {
		return path, nil
	}

	keys := make([]string, 0, len(src.Options))
	for k := range src.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s_pragma=%s(%s)", sep, k, src.Options[k])
		sep = "&"
	}
	return sb.String(), nil
}

// MapError translates modernc.org/sqlite result codes into *errs.Error.
func (Driver) MapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return errs.Wrap(classifyCode(sqliteErr.Code()), msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classifyCode maps a SQLite result code to ErrKind. Extended codes carry
// the primary code in their low byte.
func classifyCode(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return errs.ErrKindConflict
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return errs.ErrKindConnectionFailed
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
