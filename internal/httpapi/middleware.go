package httpapi

import (
	"net/http"

	"tow-dispatch/internal/general/logger"

	"github.com/google/uuid"
)

// requestID tags each request context with an id so log lines across one
// request correlate. An inbound X-Request-Id wins over a generated one.
func requestID(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r.WithContext(log.WithRequestID(r.Context(), id)))
		})
	}
}
