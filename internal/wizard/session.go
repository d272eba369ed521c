package wizard

import (
	"time"

	"github.com/google/uuid"
)

// Session is the state of one user's pass through the wizard.
// A session is never shared between users; callers serialize access to it.
type Session struct {
	ID             string     `json:"id"`
	Step           int        `json:"step"`
	Acknowledged   bool       `json:"acknowledged"`
	Answers        AnswerSet  `json:"answers"`
	LastSubmission *time.Time `json:"lastSubmission,omitempty"`
	Submissions    int        `json:"submissions"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewSession creates an empty session positioned on the disclaimer gate
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Step:      StepDisclaimer,
		Answers:   make(AnswerSet),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch records a mutation time
func (s *Session) touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}
