package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/koustreak/sqlbridge/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"wrapped cancel", fmt.Errorf("put: %w", context.Canceled), errs.ErrKindTimeout},
		{"no such bucket", miniogo.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, errs.ErrKindPermissionDenied},
		{"bad name", miniogo.ErrorResponse{Code: "InvalidBucketName", StatusCode: http.StatusBadRequest}, errs.ErrKindInvalidInput},
		{"bucket exists", miniogo.ErrorResponse{Code: "BucketAlreadyOwnedByYou", StatusCode: http.StatusConflict}, errs.ErrKindConflict},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, errs.ErrKindTimeout},
		{"status only", miniogo.ErrorResponse{StatusCode: http.StatusUnauthorized}, errs.ErrKindPermissionDenied},
		{"transport", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op failed")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.err, got.Cause)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, mapError(nil, "unused"))
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.True(t, errs.IsConfigFailed(err))
}
