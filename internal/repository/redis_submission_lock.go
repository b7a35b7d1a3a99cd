package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storybook-server/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ service.SubmissionLocker = (*RedisSubmissionLock)(nil)

// ErrLockNotAcquired is returned when another submission held the lock for longer
// than the configured wait.
var ErrLockNotAcquired = errors.New("submission lock not acquired")

const lockRetryInterval = 25 * time.Millisecond

// Deletes the key only if it still holds this holder's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSubmissionLock serializes submissions per owner across instances.
type RedisSubmissionLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisSubmissionLock creates a lock whose keys expire after ttl. Acquire polls
// for up to wait before giving up.
func NewRedisSubmissionLock(client redis.UniversalClient, prefix string, ttl, wait time.Duration, logger *zap.Logger) *RedisSubmissionLock {
	if prefix == "" {
		prefix = "submit_lock"
	}
	return &RedisSubmissionLock{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		logger: logger.Named("RedisSubmissionLock"),
	}
}

func (l *RedisSubmissionLock) key(ownerID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", l.prefix, ownerID)
}

func (l *RedisSubmissionLock) Acquire(ctx context.Context, ownerID uuid.UUID) (func(), error) {
	key := l.key(ownerID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire submission lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (l *RedisSubmissionLock) release(key, token string) {
	// The caller's context may already be cancelled; the lock must still be freed.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("Failed to release submission lock, it will expire", zap.String("key", key), zap.Error(err))
	}
}
