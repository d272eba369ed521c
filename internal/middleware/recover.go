package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
)

// Recover turns a panicking handler into a 500 response. Aborted handlers
// are re-panicked so net/http can drop the connection.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			m.requestLog(r).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("panic recovered")

			writeError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		}()

		next.ServeHTTP(w, r)
	})
}
