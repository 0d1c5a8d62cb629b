package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/sqlbridge/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error into a *errs.Error, the same way
// the database engines classify their server errors.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	resp := miniogo.ToErrorResponse(err)

	// S3 error codes are more specific than the status
	switch resp.Code {
	case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return errs.Wrap(errs.ErrKindConflict, msg, err)
	case "RequestTimeout", "SlowDown":
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	case http.StatusConflict:
		return errs.Wrap(errs.ErrKindConflict, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
