package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/changeview/idgen"
	"github.com/hazyhaar/changeview/kit"
)

type loggerKey struct{}

var newRequestID = idgen.Prefixed("req_", idgen.UUIDv7())

// RequestID tags each request with an id (reusing a client X-Request-Id
// when present), echoes it in the response and stores a logger carrying it
// in the context.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" || len(id) > 64 {
				id = newRequestID()
			}
			w.Header().Set("X-Request-Id", id)

			logger := base.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, kit.TransportHTTP)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			logger.Debug("request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logger returns the request logger stored by RequestID, or slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
