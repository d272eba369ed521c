package middleware

import (
	"net/http"
	"time"

	"github.com/efeideo/drug-form/internal/logger"
)

// responseWriter records the status code and body size of a response
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs every request once it has been served, including the
// session it belonged to
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log := m.log
		if id := GetRequestID(r.Context()); id != "" {
			log = log.WithRequestID(id)
		}
		entry := logger.RequestEntry{
			Method:   r.Method,
			Path:     r.URL.Path,
			Status:   wrapped.status,
			Bytes:    wrapped.bytes,
			Duration: time.Since(start),
			ClientIP: ClientIP(r),
		}
		if info := infoFrom(r.Context()); info != nil {
			entry.SessionID = info.sessionID
		}
		log.HTTPRequest(entry)
	})
}
