// Package wizard implements the patient access form: the step table, the
// answer set, navigation between steps and submission gating.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/efeideo/drug-form/internal/email"
)

// NotificationSubject is the subject of every admin notification
const NotificationSubject = "MAP Form Submission Notification"

// DefaultSpamWindow is the minimum time between two accepted submissions of a session
const DefaultSpamWindow = 10 * time.Second

// DefaultNotifyTimeout bounds a single notification attempt
const DefaultNotifyTimeout = 10 * time.Second

// Direction of a navigation request
type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

// Action is a user action legal on the current step
type Action string

const (
	ActionAcknowledge Action = "acknowledge"
	ActionPrevious    Action = "previous"
	ActionNext        Action = "next"
	ActionSubmit      Action = "submit"
)

// Notifier delivers the admin notification. Implementations must not panic
// and report every failure through the returned Delivery.
type Notifier interface {
	Send(ctx context.Context, subject, body, recipient string) email.Delivery
}

// requiredAtSubmission lists the only fields enforced when submitting, in report order
var requiredAtSubmission = []struct {
	key   string
	label string
}{
	{FieldAgreeDecl, "Declaration Agreement"},
	{FieldPhysSignature, "Physician Signature (Full Name)"},
	{FieldSignDate, "Date"},
}

// ControllerConfig tunes submission behaviour
type ControllerConfig struct {
	// Recipient is the admin address notifications are sent to
	Recipient string
	// SpamWindow defaults to DefaultSpamWindow
	SpamWindow time.Duration
	// NotifyTimeout defaults to DefaultNotifyTimeout
	NotifyTimeout time.Duration
	// Now is the clock used to bound year fields; defaults to time.Now
	Now func() time.Time
}

// Controller drives sessions through the step table.
// It holds no per-session state and is safe for concurrent use; callers
// serialize operations on any one Session.
type Controller struct {
	steps    []StepDefinition
	notifier Notifier
	cfg      ControllerConfig
}

// NewController creates a Controller over steps
func NewController(steps []StepDefinition, notifier Notifier, cfg ControllerConfig) *Controller {
	if cfg.SpamWindow <= 0 {
		cfg.SpamWindow = DefaultSpamWindow
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{steps: steps, notifier: notifier, cfg: cfg}
}

// Steps returns the step table
func (c *Controller) Steps() []StepDefinition { return c.steps }

// LastStep returns the index of the terminal step
func (c *Controller) LastStep() int { return len(c.steps) - 1 }

// Step returns the definition of step index
func (c *Controller) Step(index int) (StepDefinition, bool) {
	if index < 0 || index >= len(c.steps) {
		return StepDefinition{}, false
	}
	return c.steps[index], true
}

// Advance moves the session one step in dir. Moves past either end, and
// moving forward off the disclaimer gate, are no-ops. It reports whether
// the step index changed.
func (c *Controller) Advance(s *Session, dir Direction) bool {
	target := s.Step
	switch dir {
	case Next:
		if s.Step == StepDisclaimer {
			return false
		}
		target++
	case Previous:
		target--
	default:
		return false
	}
	if target < 0 || target > c.LastStep() {
		return false
	}
	s.Step = target
	s.touch(c.cfg.Now())
	return true
}

// Acknowledge records the HCP confirmation and opens the gate. It is a
// no-op anywhere but the disclaimer step.
func (c *Controller) Acknowledge(s *Session) bool {
	if s.Step != StepDisclaimer || c.LastStep() < StepPhysician {
		return false
	}
	s.Acknowledged = true
	s.Step = StepPhysician
	s.touch(c.cfg.Now())
	return true
}

// Actions lists the actions legal on the session's current step
func (c *Controller) Actions(s *Session) []Action {
	switch s.Step {
	case StepDisclaimer:
		return []Action{ActionAcknowledge}
	case c.LastStep():
		return []Action{ActionPrevious, ActionSubmit}
	default:
		return []Action{ActionPrevious, ActionNext}
	}
}

func (c *Controller) field(stepIndex int, key string) (FieldDefinition, error) {
	step, ok := c.Step(stepIndex)
	if !ok {
		return FieldDefinition{}, &InvalidFieldValueError{Field: key, Reason: fmt.Sprintf("unknown step %d", stepIndex)}
	}
	f, ok := step.Field(key)
	if !ok {
		return FieldDefinition{}, &InvalidFieldValueError{Field: key, Reason: fmt.Sprintf("no such field on step %d", stepIndex)}
	}
	return f, nil
}

// RecordAnswer validates v against the field's domain and stores it.
// Required-but-empty values are accepted; they are only enforced at submission.
func (c *Controller) RecordAnswer(s *Session, stepIndex int, key string, v Value) error {
	f, err := c.field(stepIndex, key)
	if err != nil {
		return err
	}
	if err := f.Check(v, c.cfg.Now()); err != nil {
		return err
	}
	if s.Answers == nil {
		s.Answers = make(AnswerSet)
	}
	s.Answers[key] = v
	s.touch(c.cfg.Now())
	return nil
}

// RecordRawAnswer decodes a JSON value according to the field's kind and records it
func (c *Controller) RecordRawAnswer(s *Session, stepIndex int, key string, raw json.RawMessage) error {
	f, err := c.field(stepIndex, key)
	if err != nil {
		return err
	}
	v, err := f.Decode(raw)
	if err != nil {
		return err
	}
	return c.RecordAnswer(s, stepIndex, key, v)
}

// VisibleFields yields the fields of a step whose visibility predicate holds
// for the session's answers at the time of iteration. The sequence can be
// ranged over repeatedly and re-reads the answers on every pass.
func (c *Controller) VisibleFields(s *Session, stepIndex int) iter.Seq[FieldDefinition] {
	return func(yield func(FieldDefinition) bool) {
		step, ok := c.Step(stepIndex)
		if !ok {
			return
		}
		if step.Render != nil && !step.Render(s.Answers) {
			return
		}
		for _, f := range step.Fields {
			if !f.IsVisible(s.Answers) {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// IsSet reports whether key holds a value and its field is currently visible
func (c *Controller) IsSet(s *Session, key string) bool {
	if _, ok := s.Answers[key]; !ok {
		return false
	}
	for i := range c.steps {
		for f := range c.VisibleFields(s, i) {
			if f.Key == key {
				return true
			}
		}
	}
	return false
}

// FieldWarning is a non-blocking message attached to a field
type FieldWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Warnings returns advisory messages for the visible fields of a step
func (c *Controller) Warnings(s *Session, stepIndex int) []FieldWarning {
	var out []FieldWarning
	for f := range c.VisibleFields(s, stepIndex) {
		if f.Advise == nil {
			continue
		}
		v, ok := s.Answers[f.Key]
		if !ok {
			continue
		}
		if msg := f.Advise(v); msg != "" {
			out = append(out, FieldWarning{Field: f.Key, Message: msg})
		}
	}
	return out
}

// ValidateSubmission checks the declaration agreement, signature and
// signing date. Other required markers are not enforced here.
func (c *Controller) ValidateSubmission(s *Session) error {
	var missing []string
	for _, r := range requiredAtSubmission {
		if !present(s.Answers[r.key]) {
			missing = append(missing, r.label)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Labels: missing}
	}
	return nil
}

// present mirrors truthiness of a stored answer: false, "" and empty lists count as absent
func present(v Value) bool {
	switch v.Kind() {
	case KindText:
		s, _ := v.AsText()
		return s != ""
	case KindBoolean:
		b, _ := v.AsBool()
		return b
	case KindList:
		l, _ := v.AsList()
		return len(l) > 0
	case KindInteger, KindDate:
		return true
	}
	return false
}

// Submission is an accepted submission awaiting notification
type Submission struct {
	SessionID string
	At        time.Time
	Subject   string
	Body      string
	Recipient string
}

// Submitted is the outcome of an accepted submission. Notified is false
// when the notification could not be delivered; Diagnostic then says why.
type Submitted struct {
	At         time.Time
	Notified   bool
	Diagnostic error
}

// PrepareSubmission runs the submission gate and, when it passes, commits
// the submission timestamp and renders the notification from a snapshot of
// the answers. On error the session is left untouched.
func (c *Controller) PrepareSubmission(s *Session, now time.Time) (*Submission, error) {
	if err := c.ValidateSubmission(s); err != nil {
		return nil, err
	}
	if s.LastSubmission != nil && now.Sub(*s.LastSubmission) < c.cfg.SpamWindow {
		return nil, ErrTooSoon
	}

	at := now
	s.LastSubmission = &at
	s.Submissions++
	s.touch(now)

	return &Submission{
		SessionID: s.ID,
		At:        now,
		Subject:   NotificationSubject,
		Body:      email.SubmissionNotificationText(RenderAnswers(c.steps, s.Answers)),
		Recipient: c.cfg.Recipient,
	}, nil
}

// Deliver hands a prepared submission to the notifier under the notify timeout.
// Delivery failures are reported in the result and never undo the submission.
func (c *Controller) Deliver(ctx context.Context, sub *Submission) Submitted {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NotifyTimeout)
	defer cancel()

	d := c.notifier.Send(ctx, sub.Subject, sub.Body, sub.Recipient)
	return Submitted{At: sub.At, Notified: d.Sent, Diagnostic: d.Err}
}

// TrySubmit validates, applies the anti-spam window and notifies the admin
// exactly once when the submission is accepted.
func (c *Controller) TrySubmit(ctx context.Context, s *Session, now time.Time) (Submitted, error) {
	sub, err := c.PrepareSubmission(s, now)
	if err != nil {
		return Submitted{}, err
	}
	return c.Deliver(ctx, sub), nil
}
