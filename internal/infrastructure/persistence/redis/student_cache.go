package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/pkg/circuitbreaker"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// StudentCache implements student.Cache on top of Cache. Calls go through a
// circuit breaker so an unreachable Redis is skipped instead of adding its
// dial timeout to every standing read.
type StudentCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// StudentCacheOption configures a StudentCache.
type StudentCacheOption func(*studentCacheConfig)

type studentCacheConfig struct {
	breakerOpts []circuitbreaker.Option
	logger      *logger.Logger
}

// WithBreakerOptions tunes the cache's circuit breaker.
func WithBreakerOptions(opts ...circuitbreaker.Option) StudentCacheOption {
	return func(c *studentCacheConfig) { c.breakerOpts = append(c.breakerOpts, opts...) }
}

// WithCacheLogger logs breaker state changes.
func WithCacheLogger(log *logger.Logger) StudentCacheOption {
	return func(c *studentCacheConfig) { c.logger = log }
}

// NewStudentCache creates a new StudentCache.
func NewStudentCache(cache *Cache, opts ...StudentCacheOption) *StudentCache {
	cfg := studentCacheConfig{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.logger.With(logger.Component("standing_cache"))
	breakerOpts := []circuitbreaker.Option{
		circuitbreaker.WithCooldown(15 * time.Second),
		// A miss is a healthy answer.
		circuitbreaker.WithIsFailure(func(err error) bool { return !IsMiss(err) }),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	}

	return &StudentCache{
		cache:   cache,
		breaker: circuitbreaker.New("redis_standing_cache", append(breakerOpts, cfg.breakerOpts...)...),
	}
}

// Get returns the cached student or ErrCacheMiss.
func (s *StudentCache) Get(ctx context.Context, studentID string) (*student.Student, error) {
	var st student.Student
	err := s.call(ctx, func(ctx context.Context) error {
		return s.cache.Get(ctx, StandingKey(studentID), &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Set caches a student.
func (s *StudentCache) Set(ctx context.Context, st *student.Student, ttl time.Duration) error {
	if st == nil {
		return ErrCacheNilValue
	}
	return s.call(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, StandingKey(st.ID), st, ttl)
	})
}

// Invalidate drops the cached view of a student. Invalidation bypasses the
// breaker: a skipped delete would leave a stale standing behind.
func (s *StudentCache) Invalidate(ctx context.Context, studentID string) error {
	return s.cache.Delete(ctx, StandingKey(studentID))
}

// InvalidateAll clears every cached standing view. Run after migrations
// change the stored student shape.
func (s *StudentCache) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixStanding+"*")
}

// Check is a readiness check. An open breaker fails it without a round trip.
func (s *StudentCache) Check(ctx context.Context) error {
	if state := s.breaker.State(); state == circuitbreaker.StateOpen {
		c := s.breaker.Counts()
		return fmt.Errorf("standing cache breaker open after %d consecutive failures (%d total)",
			c.ConsecutiveFailures, c.TotalFailures)
	}
	return s.cache.Ping(ctx)
}

// BreakerState reports the state of the cache's circuit breaker.
func (s *StudentCache) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}

func (s *StudentCache) call(ctx context.Context, fn func(context.Context) error) error {
	err := s.breaker.Execute(ctx, fn)
	if circuitbreaker.IsRejection(err) {
		return shared.WrapError("cache", "StandingCache", shared.ErrServiceUnavailable,
			fmt.Sprintf("standing cache skipped (%s)", s.breaker.State()), err)
	}
	return err
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
