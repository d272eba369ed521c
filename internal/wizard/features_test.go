package wizard_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/efeideo/drug-form/internal/email"
	"github.com/efeideo/drug-form/internal/wizard"
)

var scenarioStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// countingNotifier counts notifications and optionally fails them
type countingNotifier struct {
	sent int
	fail bool
}

func (n *countingNotifier) Send(_ context.Context, _, _, _ string) email.Delivery {
	n.sent++
	if n.fail {
		return email.Delivery{Err: &email.DeliveryError{Stage: "dial", Err: errors.New("connection refused")}}
	}
	return email.Delivery{Sent: true}
}

// formContext holds state for a single scenario
type formContext struct {
	notifier *countingNotifier
	ctrl     *wizard.Controller
	session  *wizard.Session
	lastErr  error
	result   wizard.Submitted
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	fc := &formContext{}

	sc.Step(`^a new form session$`, fc.aNewFormSession)
	sc.Step(`^the mail server is down$`, fc.theMailServerIsDown)
	sc.Step(`^I acknowledge the disclaimer$`, fc.iAcknowledgeTheDisclaimer)
	sc.Step(`^I press next$`, fc.iPressNext)
	sc.Step(`^I press next (\d+) times$`, fc.iPressNextTimes)
	sc.Step(`^I press previous$`, fc.iPressPrevious)
	sc.Step(`^I answer "([^"]*)" on step (\d+) with "([^"]*)"$`, fc.iAnswer)
	sc.Step(`^the declaration is complete$`, fc.theDeclarationIsComplete)
	sc.Step(`^I submit at second (\d+)$`, fc.iSubmitAtSecond)

	sc.Step(`^the session is on step (\d+)$`, fc.theSessionIsOnStep)
	sc.Step(`^the available actions are "([^"]*)"$`, fc.theAvailableActionsAre)
	sc.Step(`^the answer "([^"]*)" is "([^"]*)"$`, fc.theAnswerIs)
	sc.Step(`^the answer is rejected$`, fc.theAnswerIsRejected)
	sc.Step(`^field "([^"]*)" is (visible|hidden) on step (\d+)$`, fc.fieldVisibility)
	sc.Step(`^the submission is missing "([^"]*)"$`, fc.theSubmissionIsMissing)
	sc.Step(`^(\d+) notifications were sent$`, fc.notificationsWereSent)
	sc.Step(`^the last submission was too soon$`, fc.theLastSubmissionWasTooSoon)
	sc.Step(`^the last submission was accepted$`, fc.theLastSubmissionWasAccepted)
	sc.Step(`^the last submission was not notified$`, fc.theLastSubmissionWasNotNotified)
}

func (fc *formContext) aNewFormSession() error {
	fc.notifier = &countingNotifier{}
	fc.ctrl = wizard.NewController(wizard.PatientAccessSteps(), fc.notifier, wizard.ControllerConfig{
		Recipient: "admin@example.com",
		Now:       func() time.Time { return scenarioStart },
	})
	fc.session = wizard.NewSession(scenarioStart)
	fc.lastErr = nil
	return nil
}

func (fc *formContext) theMailServerIsDown() error {
	fc.notifier.fail = true
	return nil
}

func (fc *formContext) iAcknowledgeTheDisclaimer() error {
	if !fc.ctrl.Acknowledge(fc.session) {
		return fmt.Errorf("acknowledge had no effect on step %d", fc.session.Step)
	}
	return nil
}

func (fc *formContext) iPressNext() error {
	fc.ctrl.Advance(fc.session, wizard.Next)
	return nil
}

func (fc *formContext) iPressNextTimes(n int) error {
	for range n {
		fc.ctrl.Advance(fc.session, wizard.Next)
	}
	return nil
}

func (fc *formContext) iPressPrevious() error {
	fc.ctrl.Advance(fc.session, wizard.Previous)
	return nil
}

// iAnswer records a raw answer; numbers are sent as JSON strings, which
// integer fields accept
func (fc *formContext) iAnswer(key string, step int, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fc.lastErr = fc.ctrl.RecordRawAnswer(fc.session, step, key, raw)
	if fc.lastErr != nil && !wizard.IsInvalidFieldValue(fc.lastErr) {
		return fc.lastErr
	}
	return nil
}

func (fc *formContext) theDeclarationIsComplete() error {
	answers := []struct {
		key   string
		value wizard.Value
	}{
		{wizard.FieldAgreeDecl, wizard.Bool(true)},
		{wizard.FieldPhysSignature, wizard.Text("Dr. Anna Muster")},
		{wizard.FieldSignDate, wizard.Date(scenarioStart)},
	}
	for _, a := range answers {
		if err := fc.ctrl.RecordAnswer(fc.session, wizard.StepDeclaration, a.key, a.value); err != nil {
			return err
		}
	}
	return nil
}

func (fc *formContext) iSubmitAtSecond(sec int) error {
	at := scenarioStart.Add(time.Duration(sec) * time.Second)
	fc.result, fc.lastErr = fc.ctrl.TrySubmit(context.Background(), fc.session, at)
	return nil
}

func (fc *formContext) theSessionIsOnStep(step int) error {
	if fc.session.Step != step {
		return fmt.Errorf("expected step %d, got %d", step, fc.session.Step)
	}
	return nil
}

func (fc *formContext) theAvailableActionsAre(list string) error {
	var got []string
	for _, a := range fc.ctrl.Actions(fc.session) {
		got = append(got, string(a))
	}
	if want := strings.Split(list, ","); !slices.Equal(got, want) {
		return fmt.Errorf("expected actions %v, got %v", want, got)
	}
	return nil
}

func (fc *formContext) theAnswerIs(key, want string) error {
	v, ok := fc.session.Answers.Get(key)
	if !ok {
		return fmt.Errorf("no answer stored for %s", key)
	}
	if v.String() != want {
		return fmt.Errorf("expected %s to be %q, got %q", key, want, v.String())
	}
	return nil
}

func (fc *formContext) theAnswerIsRejected() error {
	if !wizard.IsInvalidFieldValue(fc.lastErr) {
		return fmt.Errorf("expected an invalid field value error, got %v", fc.lastErr)
	}
	return nil
}

func (fc *formContext) fieldVisibility(key, state string, step int) error {
	visible := false
	for f := range fc.ctrl.VisibleFields(fc.session, step) {
		if f.Key == key {
			visible = true
			break
		}
	}
	if visible != (state == "visible") {
		return fmt.Errorf("expected %s to be %s on step %d", key, state, step)
	}
	return nil
}

func (fc *formContext) theSubmissionIsMissing(list string) error {
	missing, ok := wizard.IsMissingFields(fc.lastErr)
	if !ok {
		return fmt.Errorf("expected missing fields, got %v", fc.lastErr)
	}
	if want := strings.Split(list, ","); !slices.Equal(missing.Labels, want) {
		return fmt.Errorf("expected missing %v, got %v", want, missing.Labels)
	}
	return nil
}

func (fc *formContext) notificationsWereSent(n int) error {
	if fc.notifier.sent != n {
		return fmt.Errorf("expected %d notifications, got %d", n, fc.notifier.sent)
	}
	return nil
}

func (fc *formContext) theLastSubmissionWasTooSoon() error {
	if !errors.Is(fc.lastErr, wizard.ErrTooSoon) {
		return fmt.Errorf("expected too soon, got %v", fc.lastErr)
	}
	return nil
}

func (fc *formContext) theLastSubmissionWasAccepted() error {
	if fc.lastErr != nil {
		return fmt.Errorf("expected acceptance, got %v", fc.lastErr)
	}
	return nil
}

func (fc *formContext) theLastSubmissionWasNotNotified() error {
	if fc.result.Notified {
		return errors.New("expected the notification to fail")
	}
	if fc.result.Diagnostic == nil {
		return errors.New("expected a delivery diagnostic")
	}
	return nil
}
