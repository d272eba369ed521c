package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/efeideo/drug-form/internal/config"
)

// keyPrefix namespaces every key the form service writes
const keyPrefix = "mapform"

// ErrMissing is returned when a key does not exist or has expired
var ErrMissing = errors.New("redis: key does not exist")

// releaseScript deletes a lock key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis wraps the Redis client with the few primitives the form service
// needs: namespaced JSON values with a TTL, token locks and windowed counters.
type Redis struct {
	*redis.Client
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     50,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Redis{Client: client}, nil
}

// Key joins parts under the service namespace, e.g. Key("session", id)
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

// HealthCheck verifies the Redis connection is healthy
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.Ping(ctx).Err()
}

// PutJSON stores v as JSON under key for ttl
func (r *Redis) PutJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return r.Set(ctx, key, data, ttl).Err()
}

// ReplaceJSON overwrites an existing key with v and a fresh ttl.
// It returns ErrMissing when the key is gone.
func (r *Redis) ReplaceJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	ok, err := r.SetXX(ctx, key, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrMissing
	}
	return nil
}

// GetJSON decodes the JSON value under key into v
func (r *Redis) GetJSON(ctx context.Context, key string, v any) error {
	data, err := r.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMissing
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	return r.Del(ctx, keys...).Err()
}

// TryLock sets key to a fresh token if it is unset. The token is needed to
// release the lock; ok is false when someone else holds it.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = r.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Unlock releases a lock taken with TryLock, unless it expired and was
// taken over in the meantime
func (r *Redis) Unlock(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.Client, []string{key}, token).Err()
}

// Hit counts one event in the fixed window starting at the first hit and
// returns the count so far and the time left in the window
func (r *Redis) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}
