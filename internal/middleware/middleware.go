package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/efeideo/drug-form/internal/config"
	"github.com/efeideo/drug-form/internal/database"
	"github.com/efeideo/drug-form/internal/logger"
)

// Middleware holds the HTTP middleware of the form API
type Middleware struct {
	rdb *database.Redis
	log *logger.Logger
	cfg *config.Config
}

// New creates a new Middleware instance. rdb may be nil, in which case
// rate limiting is skipped.
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config) *Middleware {
	return &Middleware{
		rdb: rdb,
		log: log.WithComponent("http"),
		cfg: cfg,
	}
}

// Chain wraps h in mws. The first middleware is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// requestLog returns the logger tagged with what is known about r so far
func (m *Middleware) requestLog(r *http.Request) *logger.Logger {
	log := m.log
	if info := infoFrom(r.Context()); info != nil {
		if info.requestID != "" {
			log = log.WithRequestID(info.requestID)
		}
		if info.sessionID != "" {
			log = log.WithSessionID(info.sessionID)
		}
	}
	return log
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// writeError writes the API error envelope
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]errorBody{
		"error": {Code: code, Message: message, RequestID: GetRequestID(r.Context())},
	})
}
