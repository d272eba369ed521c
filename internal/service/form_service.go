package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/efeideo/drug-form/internal/logger"
	"github.com/efeideo/drug-form/internal/repository"
	"github.com/efeideo/drug-form/internal/wizard"
)

// Form service errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is busy, please retry")
	ErrStepNotFound    = errors.New("step not found")
)

const defaultLockWait = 5 * time.Second

// Purger is implemented by repositories that need expired sessions swept
type Purger interface {
	PurgeExpired() int
}

// FormService owns the lifecycle of wizard sessions and serializes every
// mutation of a session behind the repository lock.
type FormService struct {
	repo     repository.SessionRepository
	ctrl     *wizard.Controller
	log      *logger.Logger
	lockWait time.Duration
	now      func() time.Time
}

// NewFormService creates a new FormService
func NewFormService(repo repository.SessionRepository, ctrl *wizard.Controller, log *logger.Logger) *FormService {
	return &FormService{
		repo:     repo,
		ctrl:     ctrl,
		log:      log.WithComponent("form_service"),
		lockWait: defaultLockWait,
		now:      time.Now,
	}
}

// Start creates a new session positioned on the disclaimer
func (s *FormService) Start(ctx context.Context) (*SessionView, error) {
	sess := wizard.NewSession(s.now())
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.log.Audit(sess.ID, logger.ActionStart).Msg("session started")
	return s.sessionView(sess), nil
}

// Current returns the view of the session's current step
func (s *FormService) Current(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sessionView(sess), nil
}

// Step returns the static definition of a step
func (s *FormService) Step(index int) (*StepView, error) {
	step, ok := s.ctrl.Step(index)
	if !ok {
		return nil, ErrStepNotFound
	}
	return stepView(step, s.now()), nil
}

// Acknowledge opens the disclaimer gate
func (s *FormService) Acknowledge(ctx context.Context, id string) (*SessionView, error) {
	return s.mutate(ctx, id, func(sess *wizard.Session) (bool, error) {
		changed := s.ctrl.Acknowledge(sess)
		if changed {
			s.log.Audit(sess.ID, logger.ActionAcknowledge).Msg("disclaimer acknowledged")
		}
		return changed, nil
	})
}

// Advance moves the session one step in dir
func (s *FormService) Advance(ctx context.Context, id string, dir wizard.Direction) (*SessionView, error) {
	return s.mutate(ctx, id, func(sess *wizard.Session) (bool, error) {
		return s.ctrl.Advance(sess, dir), nil
	})
}

// Record validates and stores one answer given as raw JSON
func (s *FormService) Record(ctx context.Context, id string, step int, key string, raw json.RawMessage) (*SessionView, error) {
	return s.mutate(ctx, id, func(sess *wizard.Session) (bool, error) {
		if err := s.ctrl.RecordRawAnswer(sess, step, key, raw); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Submit runs the submission gate under the session lock, then notifies the
// admin outside of it.
func (s *FormService) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	var sub *wizard.Submission
	_, err := s.mutate(ctx, id, func(sess *wizard.Session) (bool, error) {
		var err error
		sub, err = s.ctrl.PrepareSubmission(sess, s.now())
		if err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// The request may be abandoned; an accepted submission is still reported.
	res := s.ctrl.Deliver(context.WithoutCancel(ctx), sub)

	s.log.Audit(id, logger.ActionSubmit).
		Bool("notified", res.Notified).
		Time("submitted_at", res.At).
		Msg("submission accepted")

	out := &SubmitResult{SubmittedAt: res.At, Notified: res.Notified}
	if !res.Notified {
		out.Warning = "Your submission was recorded, but the notification email could not be sent."
		if res.Diagnostic != nil {
			s.log.Warn().Err(res.Diagnostic).Str("session_id", id).Msg("submission accepted without notification")
		}
	}
	return out, nil
}

// Close discards the session
func (s *FormService) Close(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.log.Audit(id, logger.ActionClose).Msg("session closed")
	return nil
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
// It returns immediately for repositories that expire entries themselves.
func (s *FormService) RunJanitor(ctx context.Context, interval time.Duration) {
	p, ok := s.repo.(Purger)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.PurgeExpired(); n > 0 {
				s.log.Debug().Int("count", n).Msg("purged expired sessions")
			}
		}
	}
}

func (s *FormService) load(ctx context.Context, id string) (*wizard.Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// mutate runs fn on a freshly loaded session while holding its lock and
// saves the session when fn reports a change.
func (s *FormService) mutate(ctx context.Context, id string, fn func(*wizard.Session) (bool, error)) (*SessionView, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	unlock, err := s.repo.Lock(lockCtx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLocked) {
			return nil, ErrSessionBusy
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := fn(sess)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.repo.Save(ctx, sess); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}
	return s.sessionView(sess), nil
}
