package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/sqlbridge/internal/errs"
)

// PostgreSQL SQLSTATE codes and classes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection      = "08"
	pgClassAuthorization   = "28"
	pgClassIntegrity       = "23"
	pgClassSyntaxOrAccess  = "42"
	pgErrQueryCanceled     = "57014"
	pgErrInvalidCatalog    = "3D000"
	pgErrInsufficientPriv  = "42501"
	pgErrLockNotAvailable  = "55P03"
	pgErrTooManyConnection = "53300"
)

// MapError translates pgx / pgconn native errors into *errs.Error.
func (Driver) MapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifyCode(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// TLS, network and handshake failures
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyCode maps a SQLSTATE code to ErrKind.
func classifyCode(code string) errs.ErrKind {
	switch code {
	case pgErrQueryCanceled, pgErrLockNotAvailable:
		return errs.ErrKindTimeout
	case pgErrInvalidCatalog, pgErrTooManyConnection:
		return errs.ErrKindConnectionFailed
	case pgErrInsufficientPriv:
		return errs.ErrKindPermissionDenied
	}

	if len(code) < 2 {
		return errs.ErrKindQueryFailed
	}
	switch code[:2] {
	case pgClassConnection:
		return errs.ErrKindConnectionFailed
	case pgClassAuthorization:
		return errs.ErrKindPermissionDenied
	case pgClassIntegrity:
		return errs.ErrKindConflict
	case pgClassSyntaxOrAccess:
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
