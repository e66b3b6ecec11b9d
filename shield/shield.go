// Package shield holds the HTTP middleware shared by the changeview server:
// security headers, HEAD handling, request body limits and a per-request
// id with its logger.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger, 1<<20) {
//		r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

// Stack returns the default middleware, outermost first.
func Stack(logger *slog.Logger, maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		RequestID(logger),
	}
}
