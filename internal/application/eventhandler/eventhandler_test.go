package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gradebook/internal/infrastructure/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	students    *memory.StudentRepository
	enrollments *memory.EnrollmentRepository
	alerts      *memory.AlertRepository
	bus         *messaging.NotificationBus
}

func newFixture(t *testing.T, withStandingHandler bool) *fixture {
	t.Helper()
	f := &fixture{
		students:    memory.NewStudentRepository(),
		enrollments: memory.NewEnrollmentRepository(),
		alerts:      memory.NewAlertRepository(),
		bus:         messaging.NewNotificationBus(messaging.BusConfig{}),
	}
	requester := service.NewAlertService(f.alerts, nil, nil)

	require.NoError(t, f.bus.Attach(NameRecalculateGPA, NewRecalculateGPAHandler(f.enrollments, f.students, nil, nil), PriorityRecalculateGPA))
	require.NoError(t, f.bus.Attach(NameRiskDetection, NewRiskDetectionHandler(requester, nil), PriorityRiskDetection))
	if withStandingHandler {
		require.NoError(t, f.bus.Attach(NameStandingChange, NewStandingChangeHandler(requester, nil, DefaultStandingChangeConfig()), PriorityStandingChange))
	}
	return f
}

func (f *fixture) seedStudent(t *testing.T, st *student.Student) {
	t.Helper()
	require.NoError(t, f.students.Save(context.Background(), st))
}

func (f *fixture) seedCompleted(t *testing.T, id string, credits int, gpa float64) *enrollment.Enrollment {
	t.Helper()
	e := &enrollment.Enrollment{
		ID: id, StudentID: "s-1", CourseCode: id, Credits: credits,
		GradingScale: grading.Scale10, Status: enrollment.StatusActive,
	}
	require.NoError(t, e.Complete(5, gpa, "X", time.Now()))
	require.NoError(t, f.enrollments.Save(context.Background(), e))
	return e
}

func (f *fixture) notify(t *testing.T, e *enrollment.Enrollment) *messaging.GradeChange {
	t.Helper()
	st, err := f.students.GetByID(context.Background(), "s-1")
	require.NoError(t, err)
	change := messaging.NewGradeChange(st, e, time.Now())
	require.NoError(t, f.bus.Notify(context.Background(), change))
	return change
}

func TestPipeline_LowGPAGoesToProbationWithCriticalAlert(t *testing.T) {
	f := newFixture(t, false)
	f.seedStudent(t, student.NewStudent("s-1", "Dana"))
	e := f.seedCompleted(t, "e-1", 4, 1.2)

	change := f.notify(t, e)

	stored, err := f.students.GetByID(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, stored.GPA)
	assert.InDelta(t, 1.2, *stored.GPA, 1e-9)
	assert.Equal(t, 4, stored.TotalCredits)
	assert.Equal(t, standing.Probation, stored.Standing)

	alerts := change.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.LevelCritical, alerts[0].Level)
	assert.Equal(t, alert.TypeProbation, alerts[0].Type)
}

func TestPipeline_RiskHandlerSeesRecalculatedGPA(t *testing.T) {
	f := newFixture(t, false)
	st := student.NewStudent("s-1", "Dana")
	old := 3.9
	st.ApplyGPA(&old, 3)
	f.seedStudent(t, st)
	e := f.seedCompleted(t, "e-1", 3, 1.7)

	change := f.notify(t, e)

	alerts := change.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.LevelHigh, alerts[0].Level)
	assert.Equal(t, alert.TypeLowGPA, alerts[0].Type)
	assert.Equal(t, standing.AtRisk, change.Student.Standing)
}

func TestPipeline_HealthyGPARaisesNothing(t *testing.T) {
	f := newFixture(t, false)
	f.seedStudent(t, student.NewStudent("s-1", "Dana"))
	e := f.seedCompleted(t, "e-1", 3, 4.0)

	change := f.notify(t, e)

	assert.Empty(t, change.Alerts())
	assert.Equal(t, standing.Normal, change.Student.Standing)
	assert.Equal(t, 4.0, *change.Student.GPA)
}

func TestPipeline_NoCountedCreditsLeavesGPAAbsent(t *testing.T) {
	f := newFixture(t, false)
	f.seedStudent(t, student.NewStudent("s-1", "Dana"))
	e := f.seedCompleted(t, "e-1", 3, 0.0)

	change := f.notify(t, e)

	assert.Nil(t, change.Student.GPA)
	assert.Equal(t, 0, change.Student.TotalCredits)
	assert.Equal(t, standing.Normal, change.Student.Standing)
	assert.Empty(t, change.Alerts())
}

func TestPipeline_GraduatedStaysGraduated(t *testing.T) {
	f := newFixture(t, false)
	st := student.NewStudent("s-1", "Dana")
	st.Standing = standing.Graduated
	f.seedStudent(t, st)
	e := f.seedCompleted(t, "e-1", 3, 1.0)

	change := f.notify(t, e)
	assert.Equal(t, standing.Graduated, change.Student.Standing)
}

func TestStandingChangeHandler_DeclineAndDrop(t *testing.T) {
	f := newFixture(t, true)
	st := student.NewStudent("s-1", "Dana")
	prev := 4.0
	st.ApplyGPA(&prev, 3)
	f.seedStudent(t, st)
	f.seedCompleted(t, "e-0", 3, 4.0)
	e := f.seedCompleted(t, "e-1", 3, 1.0)

	change := f.notify(t, e)

	// (4*3 + 1*3) / 6 = 2.5: still NORMAL, but a 1.5 drop.
	assert.InDelta(t, 2.5, *change.Student.GPA, 1e-9)
	alerts := change.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.TypeGPADrop, alerts[0].Type)
	assert.Equal(t, alert.LevelWarning, alerts[0].Level)
}

func TestStandingChangeHandler_StatusChangeLevels(t *testing.T) {
	h := NewStandingChangeHandler(service.NewAlertService(memory.NewAlertRepository(), nil, nil), nil, StandingChangeConfig{})

	st := student.NewStudent("s-1", "Dana")
	st.Standing = standing.AtRisk
	change := messaging.NewGradeChange(st, nil, time.Now())
	st.ApplyStanding(standing.Probation)

	require.NoError(t, h.Handle(context.Background(), change))
	require.Len(t, change.Alerts(), 1)
	assert.Equal(t, alert.TypeStatusChange, change.Alerts()[0].Type)
	assert.Equal(t, alert.LevelWarning, change.Alerts()[0].Level)

	st2 := student.NewStudent("s-2", "Yerlan")
	st2.Standing = standing.Probation
	low := 1.0
	st2.ApplyGPA(&low, 3)
	change2 := messaging.NewGradeChange(st2, nil, time.Now())
	high := 2.2
	st2.ApplyGPA(&high, 6)
	st2.ApplyStanding(standing.Normal)

	require.NoError(t, h.Handle(context.Background(), change2))
	got := change2.Alerts()
	require.Len(t, got, 2)
	assert.Equal(t, alert.LevelInfo, got[0].Level)
	assert.Equal(t, alert.TypeImprovement, got[1].Type)
}

type brokenRequester struct{}

func (brokenRequester) Request(context.Context, alert.Request) (*alert.Alert, error) {
	return nil, errors.New("alert store down")
}

func TestRiskDetectionHandler_PropagatesRequesterError(t *testing.T) {
	h := NewRiskDetectionHandler(brokenRequester{}, nil)
	st := student.NewStudent("s-1", "Dana")
	gpa := 1.0
	st.ApplyGPA(&gpa, 3)

	err := h.Handle(context.Background(), messaging.NewGradeChange(st, nil, time.Now()))
	assert.ErrorContains(t, err, "alert store down")
}

func TestClassify(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	tests := []struct {
		name  string
		gpa   *float64
		level alert.Level
		typ   alert.Type
		ok    bool
	}{
		{"absent", nil, "", "", false},
		{"critical", v(1.499), alert.LevelCritical, alert.TypeProbation, true},
		{"boundary 1.5 is high", v(1.5), alert.LevelHigh, alert.TypeLowGPA, true},
		{"high", v(1.999), alert.LevelHigh, alert.TypeLowGPA, true},
		{"boundary 2.0 is fine", v(2.0), "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, typ, ok := Classify(tt.gpa)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
