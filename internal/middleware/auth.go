package middleware

import (
	"net/http"
	"strings"

	"github.com/efeideo/drug-form/internal/auth"
)

// sessionToken finds the session token of r. A bearer Authorization header
// wins over the session cookie; other schemes are ignored.
func sessionToken(r *http.Request, cookieName string) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// SessionTokenHeader carries a renewed session token on the response
const SessionTokenHeader = "X-Session-Token"

// Session resolves the wizard session of a request from its token and
// rejects requests without a valid one. Tokens past half their lifetime are
// renewed through SessionTokenHeader and the session cookie.
func (m *Middleware) Session(tokenSvc *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, m.cfg.Session.CookieName)
			if token == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "A session token is required")
				return
			}

			claims, err := tokenSvc.Parse(token)
			if err != nil {
				m.requestLog(r).Debug().Err(err).Msg("rejected session token")
				writeError(w, r, http.StatusUnauthorized, "invalid_session", "The session token is invalid or expired")
				return
			}
			ctx := withSessionID(r.Context(), claims.Subject)

			if tokenSvc.NeedsRenewal(claims) {
				renewed, err := tokenSvc.Issue(claims.Subject)
				if err != nil {
					m.requestLog(r).Error().Err(err).Msg("failed to renew session token")
				} else {
					w.Header().Set(SessionTokenHeader, renewed.Token)
					http.SetCookie(w, tokenSvc.Cookie(m.cfg.Session.CookieName, renewed, r.TLS != nil))
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
