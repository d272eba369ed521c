package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/efeideo/drug-form/internal/wizard"
)

var (
	// ErrNotFound is returned for unknown or expired sessions
	ErrNotFound = errors.New("session not found")
	// ErrLocked is returned when the session lock could not be taken in time
	ErrLocked = errors.New("session is locked")
)

// SessionRepository holds in-flight wizard sessions. Implementations return
// copies: a session read with Get must be written back with Save.
type SessionRepository interface {
	// Create stores a new session
	Create(ctx context.Context, s *wizard.Session) error
	// Get returns the session or ErrNotFound when it is unknown or expired
	Get(ctx context.Context, id string) (*wizard.Session, error)
	// Save writes the session back and extends its lifetime
	Save(ctx context.Context, s *wizard.Session) error
	// Delete removes the session
	Delete(ctx context.Context, id string) error
	// Lock serializes operations on one session until the returned func is called
	Lock(ctx context.Context, id string) (func(), error)
}

// cloneSession returns a deep copy of s
func cloneSession(s *wizard.Session) *wizard.Session {
	c := *s
	c.Answers = s.Answers.Clone()
	if s.LastSubmission != nil {
		t := *s.LastSubmission
		c.LastSubmission = &t
	}
	return &c
}

type memoryEntry struct {
	session   *wizard.Session
	expiresAt time.Time
}

// MemorySessionRepository keeps sessions in process memory.
type MemorySessionRepository struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]memoryEntry
	locks    map[string]*sync.Mutex
}

// NewMemorySessionRepository creates a MemorySessionRepository with an idle TTL
func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Create stores a new session
func (r *MemorySessionRepository) Create(_ context.Context, s *wizard.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = memoryEntry{session: cloneSession(s), expiresAt: r.now().Add(r.ttl)}
	return nil
}

// Get returns a copy of the session
func (r *MemorySessionRepository) Get(_ context.Context, id string) (*wizard.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.now().After(e.expiresAt) {
		delete(r.sessions, id)
		delete(r.locks, id)
		return nil, ErrNotFound
	}
	return cloneSession(e.session), nil
}

// Save writes the session back and extends its lifetime
func (r *MemorySessionRepository) Save(_ context.Context, s *wizard.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.sessions[s.ID] = memoryEntry{session: cloneSession(s), expiresAt: r.now().Add(r.ttl)}
	return nil
}

// Delete removes the session
func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.locks, id)
	return nil
}

// Lock acquires the per-session mutex, giving up when ctx is done
func (r *MemorySessionRepository) Lock(ctx context.Context, id string) (func(), error) {
	r.mu.Lock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	r.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// Release the mutex once the pending acquisition completes
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, ErrLocked
	}
}

// PurgeExpired drops sessions past their TTL and returns how many were removed
func (r *MemorySessionRepository) PurgeExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, e := range r.sessions {
		if now.After(e.expiresAt) {
			delete(r.sessions, id)
			delete(r.locks, id)
			n++
		}
	}
	return n
}
