package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/server/handlers"
)

// Recoverer turns handler panics into 500 responses with the standard
// JSON error envelope instead of a dropped connection.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Handler panicked",
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec),
						zap.Stack("stack"))
					handlers.WriteJSONError(w, http.StatusInternalServerError,
						"INTERNAL", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
