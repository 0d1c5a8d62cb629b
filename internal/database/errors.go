package database

import (
	"context"
	"errors"

	"github.com/koustreak/sqlbridge/internal/errs"
)

// mapError classifies err, giving context deadlines precedence over the
// engine's own mapping. err must be non-nil.
func mapError(d Driver, err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if e := d.MapError(err, msg); e != nil {
		return e
	}
	return errs.Wrap(errs.ErrKindUnknown, msg, err)
}

func errNotConnected() *errs.Error {
	return errs.New(errs.ErrKindNotConnected, "session is not connected")
}
