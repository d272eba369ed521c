package mapform

import "time"

// Field describes one form field.
type Field struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Kind     string      `json:"kind"`
	Required bool        `json:"required"`
	Options  []string    `json:"options,omitempty"`
	Min      *int        `json:"min,omitempty"`
	Max      *int        `json:"max,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// Warning is a non-blocking message attached to a field.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Session is the server's view of the current step.
type Session struct {
	ID             string     `json:"id"`
	Step           int        `json:"step"`
	StepCount      int        `json:"stepCount"`
	Section        string     `json:"section"`
	Title          string     `json:"title"`
	Acknowledged   bool       `json:"acknowledged"`
	Fields         []Field    `json:"fields"`
	Warnings       []Warning  `json:"warnings,omitempty"`
	Actions        []string   `json:"actions"`
	LastSubmission *time.Time `json:"lastSubmission,omitempty"`
	Submissions    int        `json:"submissions"`
}

// Step is the static definition of a step.
type Step struct {
	Index   int     `json:"index"`
	Section string  `json:"section"`
	Title   string  `json:"title"`
	Fields  []Field `json:"fields"`
}

// StartResponse is returned when a session is started.
type StartResponse struct {
	Token     string   `json:"token"`
	TokenType string   `json:"tokenType"`
	ExpiresIn int      `json:"expiresIn"`
	Session   *Session `json:"session"`
}

// Answer is the body of a recorded answer.
type Answer struct {
	Step  int         `json:"step"`
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

// SubmitResult is the outcome of an accepted submission.
type SubmitResult struct {
	SubmittedAt time.Time `json:"submittedAt"`
	Notified    bool      `json:"notified"`
	Warning     string    `json:"warning,omitempty"`
}
