package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efeideo/drug-form/internal/auth"
	"github.com/efeideo/drug-form/internal/config"
	"github.com/efeideo/drug-form/internal/email"
	"github.com/efeideo/drug-form/internal/handler"
	"github.com/efeideo/drug-form/internal/logger"
	"github.com/efeideo/drug-form/internal/middleware"
	"github.com/efeideo/drug-form/internal/repository"
	"github.com/efeideo/drug-form/internal/router"
	"github.com/efeideo/drug-form/internal/service"
	"github.com/efeideo/drug-form/internal/wizard"
)

type stubNotifier struct {
	sent int
}

func (n *stubNotifier) Send(context.Context, string, string, string) email.Delivery {
	n.sent++
	return email.Delivery{Sent: true}
}

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			Store:      "memory",
			TTL:        time.Hour,
			Secret:     "test-secret",
			Issuer:     "mapform",
			CookieName: "mapform_session",
		},
		Submission: config.SubmissionConfig{SpamWindow: 10 * time.Second},
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			RateLimiting:   config.RateLimitingConfig{Enabled: true, DefaultLimit: 100, Window: time.Minute},
		},
	}
}

func newServer(t *testing.T, n wizard.Notifier) *httptest.Server {
	t.Helper()
	cfg := testConfig()
	log := logger.Nop()

	tokenSvc, err := auth.NewTokenService(cfg.Session)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := wizard.NewController(wizard.PatientAccessSteps(), n, wizard.ControllerConfig{
		Recipient:  "admin@example.com",
		SpamWindow: cfg.Submission.SpamWindow,
	})
	formSvc := service.NewFormService(repository.NewMemorySessionRepository(cfg.Session.TTL), ctrl, log)

	h := handler.New(nil, log, cfg, formSvc, tokenSvc)
	mw := middleware.New(nil, log, cfg)

	srv := httptest.NewServer(router.New(h, mw, cfg, tokenSvc))
	t.Cleanup(srv.Close)
	return srv
}

type apiClient struct {
	t     *testing.T
	base  string
	token string
}

// call sends a JSON request and decodes the response body into a generic map
func (c *apiClient) call(method, path string, body any) (int, map[string]any, http.Header) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &out)
	}
	return resp.StatusCode, out, resp.Header
}

func (c *apiClient) start() map[string]any {
	c.t.Helper()
	status, body, _ := c.call(http.MethodPost, "/api/v1/sessions", nil)
	if status != http.StatusCreated {
		c.t.Fatalf("start session status = %d, body = %v", status, body)
	}
	c.token, _ = body["token"].(string)
	return body["session"].(map[string]any)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &stubNotifier{})
	c := &apiClient{t: t, base: srv.URL}

	status, body, headers := c.call(http.MethodGet, "/health", nil)
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("GET /health = %d %v", status, body)
	}
	if headers.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if headers.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	if status, _, _ := c.call(http.MethodGet, "/ready", nil); status != http.StatusOK {
		t.Errorf("GET /ready = %d", status)
	}
}

func TestSessionRoutesRequireToken(t *testing.T) {
	srv := newServer(t, &stubNotifier{})
	c := &apiClient{t: t, base: srv.URL}

	status, body, _ := c.call(http.MethodGet, "/api/v1/sessions/current", nil)
	if status != http.StatusUnauthorized || errorCode(body) != "unauthorized" {
		t.Errorf("no token: %d %v", status, body)
	}

	c.token = "garbage"
	status, body, _ = c.call(http.MethodGet, "/api/v1/sessions/current", nil)
	if status != http.StatusUnauthorized || errorCode(body) != "invalid_session" {
		t.Errorf("bad token: %d %v", status, body)
	}
}

func TestSessionCookie(t *testing.T) {
	srv := newServer(t, &stubNotifier{})

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "mapform_session" {
			cookie = ck
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sessions/current", nil)
	req.AddCookie(cookie)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET current with cookie = %d", resp.StatusCode)
	}
}

func TestFormWalkthrough(t *testing.T) {
	n := &stubNotifier{}
	srv := newServer(t, n)
	c := &apiClient{t: t, base: srv.URL}

	session := c.start()
	if session["step"] != float64(0) {
		t.Fatalf("new session step = %v", session["step"])
	}

	_, body, _ := c.call(http.MethodPost, "/api/v1/sessions/current/next", nil)
	if body["step"] != float64(0) {
		t.Errorf("next on the disclaimer moved to %v", body["step"])
	}

	_, body, _ = c.call(http.MethodPost, "/api/v1/sessions/current/acknowledge", nil)
	if body["step"] != float64(1) || body["acknowledged"] != true {
		t.Fatalf("acknowledge = %v", body)
	}

	answer := func(step int, field string, value any) (int, map[string]any) {
		status, body, _ := c.call(http.MethodPut, "/api/v1/sessions/current/answers", map[string]any{
			"step": step, "field": field, "value": value,
		})
		return status, body
	}

	if status, body := answer(1, "phys_email", "broken"); status != http.StatusOK || len(body["warnings"].([]any)) != 1 {
		t.Errorf("bad email answer = %d %v", status, body)
	}

	status, body := answer(2, "birth_year", 1800)
	if status != http.StatusBadRequest || errorCode(body) != "invalid_field_value" {
		t.Errorf("out of range answer = %d %v", status, body)
	}

	status, body = answer(2, "birth_year", "1975")
	if status != http.StatusOK {
		t.Errorf("numeric string answer = %d %v", status, body)
	}

	status, body, _ = c.call(http.MethodPost, "/api/v1/sessions/current/submit", nil)
	if status != http.StatusUnprocessableEntity || errorCode(body) != "missing_fields" {
		t.Fatalf("incomplete submit = %d %v", status, body)
	}
	fields := body["error"].(map[string]any)["details"].(map[string]any)["fields"].([]any)
	if len(fields) != 3 || fields[0] != "Declaration Agreement" {
		t.Errorf("missing fields = %v", fields)
	}

	answer(5, "agree_decl", true)
	answer(5, "phys_signature", "Dr. Anna Muster")
	answer(5, "sign_date", "2025-06-01")

	status, body, _ = c.call(http.MethodPost, "/api/v1/sessions/current/submit", nil)
	if status != http.StatusOK || body["notified"] != true {
		t.Fatalf("submit = %d %v", status, body)
	}

	status, body, headers := c.call(http.MethodPost, "/api/v1/sessions/current/submit", nil)
	if status != http.StatusTooManyRequests || errorCode(body) != "too_soon" {
		t.Errorf("repeat submit = %d %v", status, body)
	}
	if headers.Get("Retry-After") != "10" {
		t.Errorf("Retry-After = %q", headers.Get("Retry-After"))
	}
	if n.sent != 1 {
		t.Errorf("notifications = %d, want 1", n.sent)
	}

	if status, _, _ := c.call(http.MethodDelete, "/api/v1/sessions/current", nil); status != http.StatusNoContent {
		t.Errorf("close = %d", status)
	}
	status, body, _ = c.call(http.MethodGet, "/api/v1/sessions/current", nil)
	if status != http.StatusNotFound || errorCode(body) != "session_not_found" {
		t.Errorf("after close = %d %v", status, body)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	srv := newServer(t, &stubNotifier{})
	c := &apiClient{t: t, base: srv.URL}
	c.start()

	tests := []struct {
		name string
		body any
		code string
	}{
		{"unknown json field", map[string]any{"step": 1, "field": "phys_name", "value": "x", "extra": true}, "invalid_request"},
		{"missing field", map[string]any{"step": 1, "value": "x"}, "validation_error"},
		{"disclaimer step", map[string]any{"step": 0, "field": "phys_name", "value": "x"}, "validation_error"},
		{"missing value", map[string]any{"step": 1, "field": "phys_name"}, "validation_error"},
		{"field on another step", map[string]any{"step": 1, "field": "birth_year", "value": 1975}, "invalid_field_value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := c.call(http.MethodPut, "/api/v1/sessions/current/answers", tt.body)
			if status != http.StatusBadRequest || errorCode(body) != tt.code {
				t.Errorf("status = %d, body = %v, want 400 %s", status, body, tt.code)
			}
		})
	}
}

func TestGetStep(t *testing.T) {
	srv := newServer(t, &stubNotifier{})
	c := &apiClient{t: t, base: srv.URL}

	status, body, _ := c.call(http.MethodGet, "/api/v1/steps/2", nil)
	if status != http.StatusOK || body["section"] != "Section B" {
		t.Errorf("GET step 2 = %d %v", status, body)
	}

	if status, body, _ := c.call(http.MethodGet, "/api/v1/steps/9", nil); status != http.StatusNotFound || errorCode(body) != "step_not_found" {
		t.Errorf("GET step 9 = %d %v", status, body)
	}
	if status, _, _ := c.call(http.MethodGet, "/api/v1/steps/two", nil); status != http.StatusBadRequest {
		t.Errorf("GET step two = %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, &stubNotifier{})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "PUT") {
		t.Errorf("Allow-Methods = %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}
