package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/metrics"
	"github.com/alem-hub/gradebook/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newChange() *GradeChange {
	st := student.NewStudent("s-1", "Dana")
	return NewGradeChange(st, &enrollment.Enrollment{ID: "e-1", StudentID: "s-1"}, time.Now())
}

func recorder(calls *[]string, name string, err error) Handler {
	return HandlerFunc(func(context.Context, *GradeChange) error {
		*calls = append(*calls, name)
		return err
	})
}

func TestAttach_OrdersByPriority(t *testing.T) {
	bus := NewNotificationBus(BusConfig{})
	var calls []string

	require.NoError(t, bus.Attach("risk", recorder(&calls, "risk", nil), 10))
	require.NoError(t, bus.Attach("gpa", recorder(&calls, "gpa", nil), 0))
	require.NoError(t, bus.Attach("standing", recorder(&calls, "standing", nil), 20))
	require.NoError(t, bus.Attach("audit", recorder(&calls, "audit", nil), 10))

	assert.Equal(t, []string{"gpa", "risk", "audit", "standing"}, bus.Handlers())

	require.NoError(t, bus.Notify(context.Background(), newChange()))
	assert.Equal(t, []string{"gpa", "risk", "audit", "standing"}, calls)
}

func TestAttach_DuplicateNameIsNoop(t *testing.T) {
	bus := NewNotificationBus(BusConfig{})
	var calls []string

	require.NoError(t, bus.Attach("gpa", recorder(&calls, "first", nil), 0))
	require.NoError(t, bus.Attach("gpa", recorder(&calls, "second", nil), -5))

	require.NoError(t, bus.Notify(context.Background(), newChange()))
	assert.Equal(t, []string{"first"}, calls)
	assert.Equal(t, []string{"gpa"}, bus.Handlers())
}

func TestAttach_RejectsInvalid(t *testing.T) {
	bus := NewNotificationBus(BusConfig{})

	assert.ErrorIs(t, bus.Attach("", HandlerFunc(func(context.Context, *GradeChange) error { return nil }), 0), ErrInvalidHandler)
	assert.ErrorIs(t, bus.Attach("x", nil, 0), ErrInvalidHandler)
}

func TestDetach(t *testing.T) {
	bus := NewNotificationBus(BusConfig{})
	var calls []string
	require.NoError(t, bus.Attach("a", recorder(&calls, "a", nil), 0))
	require.NoError(t, bus.Attach("b", recorder(&calls, "b", nil), 1))

	assert.True(t, bus.Detach("a"))
	assert.False(t, bus.Detach("a"))
	require.NoError(t, bus.Notify(context.Background(), newChange()))
	assert.Equal(t, []string{"b"}, calls)
}

func TestNotify_FailFastStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	bus := NewNotificationBus(BusConfig{Policy: FailFast})
	var calls []string
	require.NoError(t, bus.Attach("gpa", recorder(&calls, "gpa", boom), 0))
	require.NoError(t, bus.Attach("risk", recorder(&calls, "risk", nil), 10))

	err := bus.Notify(context.Background(), newChange())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "gpa", he.Handler)
	assert.Equal(t, []string{"gpa"}, calls)
}

func TestNotify_CollectErrorsRunsAll(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	bus := NewNotificationBus(BusConfig{Policy: CollectErrors})
	var calls []string
	require.NoError(t, bus.Attach("a", recorder(&calls, "a", first), 0))
	require.NoError(t, bus.Attach("b", recorder(&calls, "b", nil), 1))
	require.NoError(t, bus.Attach("c", recorder(&calls, "c", second), 2))

	err := bus.Notify(context.Background(), newChange())

	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestNotify_RecoversPanics(t *testing.T) {
	bus := NewNotificationBus(BusConfig{})
	require.NoError(t, bus.Attach("bad", HandlerFunc(func(context.Context, *GradeChange) error {
		panic("nil map")
	}), 0))

	err := bus.Notify(context.Background(), newChange())
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestNotify_LaterHandlersSeeEarlierWrites(t *testing.T) {
	bus := NewNotificationBus(BusConfig{})
	var seen *float64
	require.NoError(t, bus.Attach("writer", HandlerFunc(func(_ context.Context, c *GradeChange) error {
		gpa := 1.2
		c.Student.ApplyGPA(&gpa, 4)
		c.Student.ApplyStanding(standing.Next(c.Student.Standing, c.Student.GPA))
		return nil
	}), 0))
	require.NoError(t, bus.Attach("reader", HandlerFunc(func(_ context.Context, c *GradeChange) error {
		seen = c.Student.GPA
		c.AddAlert(&alert.Alert{ID: "a-1", Level: alert.LevelCritical})
		return nil
	}), 10))

	change := newChange()
	require.NoError(t, bus.Notify(context.Background(), change))

	require.NotNil(t, seen)
	assert.Equal(t, 1.2, *seen)
	assert.True(t, change.StandingChanged())
	assert.Nil(t, change.Previous.GPA)
	assert.Len(t, change.Alerts(), 1)
}

func TestNotify_StopsOnCancelledContext(t *testing.T) {
	bus := NewNotificationBus(BusConfig{Policy: CollectErrors})
	var calls []string
	require.NoError(t, bus.Attach("a", recorder(&calls, "a", nil), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, bus.Notify(ctx, newChange()), context.Canceled)
	assert.Empty(t, calls)
}

func TestNotify_LogsAndMeasuresFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := NewNotificationBus(BusConfig{
		Logger:  logger.NewWithCore(core),
		Metrics: metrics.NewCollector(prometheus.NewRegistry()),
	})
	require.NoError(t, bus.Attach("risk", HandlerFunc(func(context.Context, *GradeChange) error {
		return errors.New("alert store down")
	}), 10))

	require.Error(t, bus.Notify(context.Background(), newChange()))

	failed := logs.FilterMessage("handler failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "risk", failed[0].ContextMap()["handler"])
	assert.Equal(t, "s-1", failed[0].ContextMap()["student_id"])
}
