package service

import (
	"time"

	"github.com/efeideo/drug-form/internal/wizard"
)

// FieldView describes one field as presented to a client
type FieldView struct {
	Key      string           `json:"key"`
	Label    string           `json:"label"`
	Kind     wizard.FieldKind `json:"kind"`
	Required bool             `json:"required"`
	Options  []string         `json:"options,omitempty"`
	Min      *int             `json:"min,omitempty"`
	Max      *int             `json:"max,omitempty"`
	Value    interface{}      `json:"value,omitempty"`
}

// StepView is the static definition of a step
type StepView struct {
	Index   int         `json:"index"`
	Section string      `json:"section"`
	Title   string      `json:"title"`
	Fields  []FieldView `json:"fields"`
}

// SessionView is what a client needs to render the current step
type SessionView struct {
	ID             string                `json:"id"`
	Step           int                   `json:"step"`
	StepCount      int                   `json:"stepCount"`
	Section        string                `json:"section"`
	Title          string                `json:"title"`
	Acknowledged   bool                  `json:"acknowledged"`
	Fields         []FieldView           `json:"fields"`
	Warnings       []wizard.FieldWarning `json:"warnings,omitempty"`
	Actions        []wizard.Action       `json:"actions"`
	LastSubmission *time.Time            `json:"lastSubmission,omitempty"`
	Submissions    int                   `json:"submissions"`
}

// SubmitResult is the outcome of an accepted submission
type SubmitResult struct {
	SubmittedAt time.Time `json:"submittedAt"`
	Notified    bool      `json:"notified"`
	// Warning is set when the admin notification could not be delivered
	Warning string `json:"warning,omitempty"`
}

func fieldView(f wizard.FieldDefinition, now time.Time) FieldView {
	fv := FieldView{
		Key:      f.Key,
		Label:    f.Label,
		Kind:     f.Kind,
		Required: f.Required,
		Options:  f.Domain.Options,
	}
	if f.Kind == wizard.FieldIntRange {
		lo := f.Domain.Min
		fv.Min = &lo
		if hi, ok := f.Domain.UpperBound(now); ok {
			fv.Max = &hi
		}
	}
	return fv
}

func stepView(step wizard.StepDefinition, now time.Time) *StepView {
	sv := &StepView{
		Index:   step.Index,
		Section: step.Section,
		Title:   step.Title,
		Fields:  make([]FieldView, 0, len(step.Fields)),
	}
	for _, f := range step.Fields {
		sv.Fields = append(sv.Fields, fieldView(f, now))
	}
	return sv
}

func (s *FormService) sessionView(sess *wizard.Session) *SessionView {
	step, _ := s.ctrl.Step(sess.Step)
	now := s.now()

	view := &SessionView{
		ID:             sess.ID,
		Step:           sess.Step,
		StepCount:      len(s.ctrl.Steps()),
		Section:        step.Section,
		Title:          step.Title,
		Acknowledged:   sess.Acknowledged,
		Fields:         []FieldView{},
		Warnings:       s.ctrl.Warnings(sess, sess.Step),
		Actions:        s.ctrl.Actions(sess),
		LastSubmission: sess.LastSubmission,
		Submissions:    sess.Submissions,
	}
	for f := range s.ctrl.VisibleFields(sess, sess.Step) {
		fv := fieldView(f, now)
		if v, ok := sess.Answers[f.Key]; ok {
			fv.Value = v.Interface()
		}
		view.Fields = append(view.Fields, fv)
	}
	return view
}
