package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/pkg/logger"
	"github.com/alem-hub/gradebook/pkg/retry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED STUDENT LOCK
// SET NX PX with a random token; release deletes the key only while the
// token still matches, so an expired lock re-acquired by another owner is
// never released by the previous one.
// ══════════════════════════════════════════════════════════════════════════════

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockLost is returned by unlock when the lock expired before release.
var ErrLockLost = errors.New("lock expired before release")

// StudentLocker implements student.Locker across processes.
type StudentLocker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	retrier *retry.Retrier
	logger  *logger.Logger
}

// LockerOption configures a StudentLocker.
type LockerOption func(*StudentLocker)

// WithLockTTL sets how long a lock lives if its owner never releases it.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *StudentLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockRetrier replaces the acquisition retry policy.
func WithLockRetrier(r *retry.Retrier) LockerOption {
	return func(l *StudentLocker) {
		if r != nil {
			l.retrier = r
		}
	}
}

// WithLockLogger sets the logger.
func WithLockLogger(log *logger.Logger) LockerOption {
	return func(l *StudentLocker) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewStudentLocker creates a locker on top of the cache's client.
func NewStudentLocker(cache *Cache, opts ...LockerOption) *StudentLocker {
	l := &StudentLocker{
		client:  cache.Client(),
		ttl:     30 * time.Second,
		retrier: retry.LockRetrier(),
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("student_locker"))
	return l
}

// Lock acquires the student's lock, retrying while another owner holds it.
// Exhausted retries or a done context fail with shared.ErrLockTimeout.
func (l *StudentLocker) Lock(ctx context.Context, studentID string) (func(context.Context) error, error) {
	key := LockKey(studentID)
	token := uuid.NewString()

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to acquire lock %s: %w", key, err))
		}
		if !ok {
			return retry.Retryable(shared.ErrLockHeld)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) || ctx.Err() != nil {
			return nil, shared.WrapError("student", "Lock", shared.ErrLockTimeout,
				fmt.Sprintf("timed out waiting for student lock %s", studentID), err)
		}
		return nil, shared.WrapError("student", "Lock", shared.ErrServiceUnavailable,
			"lock backend unavailable", err)
	}

	return func(ctx context.Context) error {
		return l.release(ctx, key, token)
	}, nil
}

func (l *StudentLocker) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if n == 0 {
		l.logger.Warn("lock expired before release", logger.String("key", key))
		return ErrLockLost
	}
	return nil
}
