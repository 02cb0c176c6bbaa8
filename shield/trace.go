package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/guildbrand/kit"
)

// TraceID tags each request with a random id, exposed as X-Trace-ID, stored
// in the context for kit endpoints and attached to a per-request logger.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 4)
		rand.Read(b)
		id := hex.EncodeToString(b)

		w.Header().Set("X-Trace-ID", id)
		logger := slog.Default().With(
			"trace_id", id,
			"method", r.Method,
			"path", r.URL.Path,
		)
		logger.Debug("request", "remote_addr", r.RemoteAddr)

		ctx := kit.WithTraceID(r.Context(), id)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
