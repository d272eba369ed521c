package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/efeideo/drug-form/internal/config"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer or expiry checks.
var ErrInvalidToken = errors.New("invalid session token")

// TokenService issues and validates the bearer tokens that bind an HTTP
// client to its wizard session.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SessionClaims represents the claims in a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionToken is returned to the client when a session is started.
type SessionToken struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int    `json:"expiresIn"`
}

// NewTokenService creates a new TokenService.
// An empty secret is replaced by a random one, so tokens do not survive a restart.
func NewTokenService(cfg config.SessionConfig) (*TokenService, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
	}
	return &TokenService{
		secret: secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the given session ID.
func (s *TokenService) Issue(sessionID string) (*SessionToken, error) {
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &SessionToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int(s.ttl.Seconds()),
	}, nil
}

// Validate verifies a token and returns the session ID it carries.
func (s *TokenService) Validate(tokenString string) (string, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// NeedsRenewal reports whether less than half of the token lifetime is left
func (s *TokenService) NeedsRenewal(claims *SessionClaims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Sub(s.now()) < s.ttl/2
}

// Cookie wraps tok in the session cookie
func (s *TokenService) Cookie(name string, tok *SessionToken, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    tok.Token,
		Path:     "/",
		MaxAge:   tok.ExpiresIn,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Parse verifies a token and returns its claims.
func (s *TokenService) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
