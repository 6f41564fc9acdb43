package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yearn/stack-router/router"
)

var (
	// ErrBadRequest is returned when the provided HTTP request
	// is malformed.
	ErrBadRequest = errors.New("invalid request parameters")
	// ErrNotFound is returned for requests to unknown endpoints.
	ErrNotFound = errors.New("no such endpoint")
	// ErrMissingSignature is returned when a mutating request carries no
	// signature header.
	ErrMissingSignature = errors.New("missing " + SignatureHeader + " header")
	// ErrBadSignature is returned when the signature header cannot be
	// parsed, or no public key can be recovered from it.
	ErrBadSignature = errors.New("malformed request signature")
)

// HumanReadableError is the body of every error response.
type HumanReadableError struct {
	Msg string `json:"msg"`
}

func HttpCodeForError(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, router.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, router.ErrStrategyNotFound):
		return http.StatusNotFound
	case errors.Is(err, router.ErrStackTooLong), errors.Is(err, router.ErrInvalidIndex):
		return http.StatusUnprocessableEntity
	case router.IsRejection(err):
		// Inactive, full, same and duplicate: valid requests that conflict
		// with the current state.
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// A simple error handler that renders any error as human-readable JSON to
// the HTTP response stream `w`.
func HumanReadableJsonErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("x-content-type-options", "nosniff")
	w.WriteHeader(HttpCodeForError(err))

	_ = json.NewEncoder(w).Encode(HumanReadableError{Msg: err.Error()})
}
