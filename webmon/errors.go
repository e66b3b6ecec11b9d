package webmon

import (
	"errors"
	"net/http"

	"github.com/hazyhaar/changeview/page"
)

var (
	// ErrInvalidInput is returned for malformed requests and configuration.
	ErrInvalidInput = errors.New("webmon: invalid input")
	// ErrUnauthorized is returned when a write needs credentials.
	ErrUnauthorized = errors.New("webmon: unauthorized")
	// ErrTraceDisabled is returned by the SQL stats endpoint when
	// debug.sql_trace is off.
	ErrTraceDisabled = errors.New("webmon: sql tracing disabled")
)

// statusOf maps service errors to HTTP status codes. Unknown errors are
// reported as fallback.
func statusOf(err error, fallback int) int {
	switch {
	case errors.Is(err, page.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, page.ErrInvalidChange):
		return http.StatusBadRequest
	case errors.Is(err, ErrTraceDisabled):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return fallback
}
