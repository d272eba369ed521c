package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efeideo/drug-form/internal/database"
	"github.com/efeideo/drug-form/internal/wizard"
)

const lockRetryDelay = 25 * time.Millisecond

// RedisSessionRepository keeps sessions in Redis so that any server node
// can serve any session.
type RedisSessionRepository struct {
	rdb     *database.Redis
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisSessionRepository creates a RedisSessionRepository
func NewRedisSessionRepository(rdb *database.Redis, ttl, lockTTL time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

func sessionKey(id string) string { return database.Key("session", id) }

func lockKey(id string) string { return database.Key("lock", id) }

// Create stores a new session
func (r *RedisSessionRepository) Create(ctx context.Context, s *wizard.Session) error {
	if err := r.rdb.PutJSON(ctx, sessionKey(s.ID), s, r.ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get loads and decodes the session
func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*wizard.Session, error) {
	var s wizard.Session
	if err := r.rdb.GetJSON(ctx, sessionKey(id), &s); err != nil {
		if errors.Is(err, database.ErrMissing) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if s.Answers == nil {
		s.Answers = make(wizard.AnswerSet)
	}
	return &s, nil
}

// Save writes the session back and refreshes its TTL
func (r *RedisSessionRepository) Save(ctx context.Context, s *wizard.Session) error {
	if err := r.rdb.ReplaceJSON(ctx, sessionKey(s.ID), s, r.ttl); err != nil {
		if errors.Is(err, database.ErrMissing) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session
func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	return r.rdb.Delete(ctx, sessionKey(id), lockKey(id))
}

// Lock polls for the session lock until it is free or ctx is done
func (r *RedisSessionRepository) Lock(ctx context.Context, id string) (func(), error) {
	key := lockKey(id)

	for {
		token, ok, err := r.rdb.TryLock(ctx, key, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			return func() {
				// The request context may already be gone
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = r.rdb.Unlock(ctx, key, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLocked
		case <-time.After(lockRetryDelay):
		}
	}
}
