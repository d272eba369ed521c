package mapform_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
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
	mapform "github.com/efeideo/drug-form/sdk/go"
)

type countingNotifier struct {
	mu   sync.Mutex
	sent int
}

func (n *countingNotifier) Send(context.Context, string, string, string) email.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	return email.Delivery{Sent: true}
}

func newTestServer(t *testing.T, n wizard.Notifier) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Session: config.SessionConfig{
			Store:      "memory",
			TTL:        time.Hour,
			Secret:     "sdk-test",
			Issuer:     "mapform",
			CookieName: "mapform_session",
		},
		Submission: config.SubmissionConfig{SpamWindow: 10 * time.Second},
	}
	log := logger.Nop()

	tokenSvc, err := auth.NewTokenService(cfg.Session)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := wizard.NewController(wizard.PatientAccessSteps(), n, wizard.ControllerConfig{Recipient: "admin@example.com"})
	formSvc := service.NewFormService(repository.NewMemorySessionRepository(time.Hour), ctrl, log)

	srv := httptest.NewServer(router.New(
		handler.New(nil, log, cfg, formSvc, tokenSvc),
		middleware.New(nil, log, cfg),
		cfg,
		tokenSvc,
	))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientWalksTheForm(t *testing.T) {
	n := &countingNotifier{}
	srv := newTestServer(t, n)
	ctx := context.Background()
	c := mapform.NewClient(mapform.Config{BaseURL: srv.URL + "/"})

	if _, err := c.Current(ctx); !errors.Is(err, mapform.ErrNoSession) {
		t.Fatalf("Current() before Start error = %v, want ErrNoSession", err)
	}

	s, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Token() == "" || s.Step != 0 || s.StepCount != wizard.StepCount {
		t.Fatalf("Start() = %+v", s)
	}

	if s, err = c.Acknowledge(ctx); err != nil || s.Step != 1 {
		t.Fatalf("Acknowledge() = %+v, %v", s, err)
	}
	if s, err = c.Next(ctx); err != nil || s.Step != 2 {
		t.Fatalf("Next() = %+v, %v", s, err)
	}

	if _, err := c.Answer(ctx, 2, "tcell_diagnosis", "PTCL"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	s, err = c.Answer(ctx, 2, "ptcl_subtype", "Other")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	var keys []string
	for _, f := range s.Fields {
		keys = append(keys, f.Key)
	}
	if keys[len(keys)-1] != "ptcl_extra_other" {
		t.Errorf("visible fields = %v", keys)
	}

	_, err = c.Answer(ctx, 2, "height", 500)
	apiErr, ok := mapform.IsAPIError(err)
	if !ok || apiErr.Code != "invalid_field_value" {
		t.Fatalf("Answer(height=500) error = %v", err)
	}

	if s, err = c.Previous(ctx); err != nil || s.Step != 1 {
		t.Fatalf("Previous() = %+v, %v", s, err)
	}

	_, err = c.Submit(ctx)
	apiErr, ok = mapform.IsAPIError(err)
	if !ok || len(apiErr.MissingFields()) != 3 {
		t.Fatalf("Submit() incomplete error = %v", err)
	}

	for _, a := range []mapform.Answer{
		{Step: 5, Field: "agree_decl", Value: true},
		{Step: 5, Field: "phys_signature", Value: "Dr. Anna Muster"},
		{Step: 5, Field: "sign_date", Value: "2025-06-01"},
	} {
		if _, err := c.Answer(ctx, a.Step, a.Field, a.Value); err != nil {
			t.Fatalf("Answer(%s) error = %v", a.Field, err)
		}
	}

	res, err := c.Submit(ctx)
	if err != nil || !res.Notified {
		t.Fatalf("Submit() = %+v, %v", res, err)
	}

	_, err = c.Submit(ctx)
	if apiErr, ok := mapform.IsAPIError(err); !ok || !apiErr.IsTooSoon() {
		t.Errorf("repeat Submit() error = %v, want too soon", err)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.Token() != "" {
		t.Error("token kept after Close")
	}
	if n.sent != 1 {
		t.Errorf("notifications = %d, want 1", n.sent)
	}
}

func TestClientResumeWithBadToken(t *testing.T) {
	srv := newTestServer(t, &countingNotifier{})
	c := mapform.NewClient(mapform.Config{BaseURL: srv.URL})
	c.Resume("not-a-token")

	if _, err := c.Current(context.Background()); !errors.Is(err, mapform.ErrSessionInvalid) {
		t.Errorf("Current() error = %v, want ErrSessionInvalid", err)
	}
}

func TestClientStep(t *testing.T) {
	srv := newTestServer(t, &countingNotifier{})
	c := mapform.NewClient(mapform.Config{BaseURL: srv.URL + "/api/v1"})

	step, err := c.Step(context.Background(), 5)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if step.Section != "Sections E & F" || len(step.Fields) != 3 {
		t.Errorf("Step(5) = %+v", step)
	}
}
