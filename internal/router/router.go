package router

import (
	"net/http"
	"time"

	"github.com/efeideo/drug-form/internal/auth"
	"github.com/efeideo/drug-form/internal/config"
	"github.com/efeideo/drug-form/internal/handler"
	"github.com/efeideo/drug-form/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config, tokenSvc *auth.TokenService) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no session required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"MAP Patient Access API v1","version":"` + handler.Version + `"}`))
	})

	limits := cfg.Security.RateLimiting

	// Starting sessions is anonymous, so it is limited per client address
	startRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "start",
		Limit:  20,
		Window: 1 * time.Hour,
		KeyFn:  middleware.IPKey,
	})
	apiRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "api",
		Limit:  limits.DefaultLimit,
		Window: limits.Window,
		KeyFn:  middleware.SessionKey,
	})

	mux.Handle("POST /api/v1/sessions", startRateLimit(http.HandlerFunc(h.StartSession)))
	mux.Handle("GET /api/v1/steps/{index}", apiRateLimit(http.HandlerFunc(h.GetStep)))

	// Session routes (require a session token)
	sessionMw := mw.Session(tokenSvc)
	withSession := func(fn http.HandlerFunc) http.Handler {
		return sessionMw(apiRateLimit(fn))
	}

	mux.Handle("GET /api/v1/sessions/current", withSession(h.GetCurrentSession))
	mux.Handle("DELETE /api/v1/sessions/current", withSession(h.CloseSession))
	mux.Handle("POST /api/v1/sessions/current/acknowledge", withSession(h.Acknowledge))
	mux.Handle("POST /api/v1/sessions/current/next", withSession(h.Next))
	mux.Handle("POST /api/v1/sessions/current/previous", withSession(h.Previous))
	mux.Handle("PUT /api/v1/sessions/current/answers", withSession(h.RecordAnswer))
	mux.Handle("POST /api/v1/sessions/current/submit", withSession(h.Submit))

	return middleware.Chain(mux,
		mw.RequestID,
		mw.Recover,
		mw.Logger,
		mw.SecurityHeaders,
		mw.CORS(cfg.Security.AllowedOrigins),
	)
}
