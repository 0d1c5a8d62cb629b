package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlbridge/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errNoDB            = 1046
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
	errUserTooManyConn = 1203
	errBadFieldError   = 1054
	errParseError      = 1064
	errDuplicateEntry  = 1062
	errNoSuchTable     = 1146
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errQueryTimeout    = 3024
	errConnRefused     = 2003
)

// MapError translates go-sql-driver/mysql errors into *errs.Error.
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

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	// network, TLS and handshake errors carry no server error number
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyCode maps MySQL error numbers to ErrKind.
func classifyCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied:
		return errs.ErrKindPermissionDenied
	case errNoDB, errUnknownDatabase, errTooManyConns, errUserTooManyConn, errConnRefused:
		return errs.ErrKindConnectionFailed
	case errDuplicateEntry, errRowIsReferenced, errNoReferencedRow:
		return errs.ErrKindConflict
	case errLockWaitTimeout, errQueryTimeout:
		return errs.ErrKindTimeout
	case errBadFieldError, errParseError, errNoSuchTable:
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
