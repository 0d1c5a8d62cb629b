package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/koustreak/sqlbridge/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind errs.ErrKind
		want int
	}{
		{errs.ErrKindNotFound, http.StatusNotFound},
		{errs.ErrKindInvalidInput, http.StatusBadRequest},
		{errs.ErrKindConflict, http.StatusConflict},
		{errs.ErrKindPermissionDenied, http.StatusForbidden},
		{errs.ErrKindTimeout, http.StatusGatewayTimeout},
		{errs.ErrKindNotConnected, http.StatusServiceUnavailable},
		{errs.ErrKindConnectionFailed, http.StatusServiceUnavailable},
		{errs.ErrKindQueryFailed, http.StatusInternalServerError},
		{errs.ErrKindDriverUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(errs.New(tt.kind, "x")))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}
