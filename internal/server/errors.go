package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/sqlbridge/internal/errs"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindNotConnected, errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := errs.KindOf(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]interface{}{"kind": kind.String()})
	}

	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
