// Package messaging implements the synchronous notification bus that fans a
// grade change out to registered handlers in priority order.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/gradebook/internal/infrastructure/metrics"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Handler reacts to a grade change.
type Handler interface {
	Handle(ctx context.Context, change *GradeChange) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, change *GradeChange) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, change *GradeChange) error {
	return f(ctx, change)
}

// FailurePolicy decides what Notify does when a handler fails.
type FailurePolicy int

const (
	// FailFast stops at the first failing handler.
	FailFast FailurePolicy = iota
	// CollectErrors runs every handler and joins the failures.
	CollectErrors
)

func (p FailurePolicy) String() string {
	if p == CollectErrors {
		return "collect"
	}
	return "fail_fast"
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrInvalidHandler is returned by Attach for a nil handler or blank name.
	ErrInvalidHandler = errors.New("invalid handler registration")
)

// HandlerError names the handler that failed.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION BUS
// ══════════════════════════════════════════════════════════════════════════════

type registration struct {
	name     string
	handler  Handler
	priority int
}

// NotificationBus runs handlers synchronously on the caller's goroutine in
// ascending priority. Handlers with equal priority run in attach order.
type NotificationBus struct {
	mu       sync.RWMutex
	handlers []registration
	policy   FailurePolicy
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// BusConfig configures a NotificationBus.
type BusConfig struct {
	Policy  FailurePolicy
	Logger  *logger.Logger
	Metrics *metrics.Collector
}

// NewNotificationBus creates an empty bus.
func NewNotificationBus(config BusConfig) *NotificationBus {
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	return &NotificationBus{
		policy:  config.Policy,
		logger:  config.Logger.With(logger.Component("notification_bus")),
		metrics: config.Metrics,
	}
}

// Attach registers a handler. Attaching a name that is already present is a
// no-op and keeps the original position.
func (b *NotificationBus) Attach(name string, handler Handler, priority int) error {
	if name == "" || handler == nil {
		return ErrInvalidHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.handlers {
		if r.name == name {
			return nil
		}
	}

	// First index with a strictly greater priority keeps insertion stable.
	idx := sort.Search(len(b.handlers), func(i int) bool {
		return b.handlers[i].priority > priority
	})
	b.handlers = append(b.handlers, registration{})
	copy(b.handlers[idx+1:], b.handlers[idx:])
	b.handlers[idx] = registration{name: name, handler: handler, priority: priority}

	b.logger.Debug("handler attached", logger.Handler(name), logger.Int("priority", priority))
	return nil
}

// Detach removes a handler by name and reports whether it was attached.
func (b *NotificationBus) Detach(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, r := range b.handlers {
		if r.name == name {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			b.logger.Debug("handler detached", logger.Handler(name))
			return true
		}
	}
	return false
}

// Handlers returns handler names in run order.
func (b *NotificationBus) Handlers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, len(b.handlers))
	for i, r := range b.handlers {
		names[i] = r.name
	}
	return names
}

// Policy returns the configured failure policy.
func (b *NotificationBus) Policy() FailurePolicy {
	return b.policy
}

// Notify runs every handler against change. Under FailFast the first failure
// is returned as a *HandlerError; under CollectErrors all failures are joined.
func (b *NotificationBus) Notify(ctx context.Context, change *GradeChange) (err error) {
	if change == nil || change.Student == nil {
		return errors.New("grade change must carry a student")
	}

	b.mu.RLock()
	handlers := make([]registration, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	defer func() { b.metrics.RecordNotification(err) }()

	var errs []error
	for _, r := range handlers {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}

		start := time.Now()
		herr := b.run(ctx, r, change)
		elapsed := time.Since(start)
		b.metrics.RecordHandler(r.name, elapsed, herr)

		if herr == nil {
			b.logger.Debug("handler completed",
				logger.Handler(r.name),
				logger.StudentID(change.Student.ID),
				logger.Latency(elapsed),
			)
			continue
		}

		b.logger.Error("handler failed",
			logger.Handler(r.name),
			logger.StudentID(change.Student.ID),
			logger.String("policy", b.policy.String()),
			logger.Latency(elapsed),
			logger.Err(herr),
		)

		wrapped := &HandlerError{Handler: r.name, Err: herr}
		if b.policy == FailFast {
			return wrapped
		}
		errs = append(errs, wrapped)
	}

	return errors.Join(errs...)
}

func (b *NotificationBus) run(ctx context.Context, r registration, change *GradeChange) (err error) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("handler panic recovered",
				logger.Handler(r.name),
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return r.handler.Handle(ctx, change)
}
