package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alem-hub/gradebook/internal/application/eventhandler"
	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gradebook/internal/infrastructure/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	students    *memory.StudentRepository
	enrollments *memory.EnrollmentRepository
	nodes       *memory.GradeNodeRepository
	alerts      *memory.AlertRepository
	bus         *messaging.NotificationBus
	locker      *memory.KeyedMutex

	eval   *GradeEvaluationService
	tree   *GradeNodeHandler
	roster *StudentHandler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		students:    memory.NewStudentRepository(),
		enrollments: memory.NewEnrollmentRepository(),
		nodes:       memory.NewGradeNodeRepository(),
		alerts:      memory.NewAlertRepository(),
		bus:         messaging.NewNotificationBus(messaging.BusConfig{}),
		locker:      memory.NewKeyedMutex(),
	}
	requester := service.NewAlertService(e.alerts, nil, nil)
	require.NoError(t, e.bus.Attach(eventhandler.NameRecalculateGPA,
		eventhandler.NewRecalculateGPAHandler(e.enrollments, e.students, nil, nil), eventhandler.PriorityRecalculateGPA))
	require.NoError(t, e.bus.Attach(eventhandler.NameRiskDetection,
		eventhandler.NewRiskDetectionHandler(requester, nil), eventhandler.PriorityRiskDetection))

	e.eval = NewGradeEvaluationService(e.enrollments, e.students, e.nodes, e.bus, e.locker, nil, nil, nil)
	e.tree = NewGradeNodeHandler(e.enrollments, e.nodes, nil)
	e.roster = NewStudentHandler(e.students, e.enrollments, e.locker, nil, nil)
	return e
}

func (e *env) enroll(t *testing.T, studentID string, credits int, scale grading.Scale) *enrollment.Enrollment {
	t.Helper()
	ctx := context.Background()
	if _, err := e.students.GetByID(ctx, studentID); shared.IsNotFound(err) {
		_, err := e.roster.Register(ctx, RegisterStudentCommand{StudentID: studentID, Name: "Test Student"})
		require.NoError(t, err)
	}
	en, err := e.roster.Enroll(ctx, CreateEnrollmentCommand{
		StudentID: studentID, CourseCode: "CS101", Credits: credits, GradingScale: string(scale),
	})
	require.NoError(t, err)
	return en
}

func ptr(v float64) *float64 { return &v }

// ──────────────────────────────────────────────────────────────────────────
// CompleteEnrollment
// ──────────────────────────────────────────────────────────────────────────

func TestCompleteEnrollment_Scale10TopScore(t *testing.T) {
	e := newEnv(t)
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	res, err := e.eval.CompleteEnrollment(context.Background(), en.ID, 9.5)
	require.NoError(t, err)

	assert.Equal(t, enrollment.StatusCompleted, res.Enrollment.Status)
	assert.Equal(t, 4.0, *res.Enrollment.GPAValue)
	assert.Equal(t, "A", res.Enrollment.LetterGrade)
	assert.Equal(t, 9.5, *res.Enrollment.FinalScore)

	require.NotNil(t, res.Student.GPA)
	assert.Equal(t, 4.0, *res.Student.GPA)
	assert.Equal(t, 3, res.Student.TotalCredits)
	assert.Equal(t, standing.Normal, res.Student.Standing)
	assert.Empty(t, res.Alerts)
	assert.False(t, res.StandingChanged())

	stored, err := e.students.GetByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, *stored.GPA)
}

func TestCompleteEnrollment_FailingScoreRaisesProbation(t *testing.T) {
	e := newEnv(t)
	en := e.enroll(t, "s-1", 4, grading.Scale4)

	res, err := e.eval.CompleteEnrollment(context.Background(), en.ID, 4.2)
	require.NoError(t, err)

	assert.Equal(t, 1.0, *res.Student.GPA)
	assert.Equal(t, 4, res.Student.TotalCredits)
	assert.Equal(t, standing.Probation, res.Student.Standing)
	assert.True(t, res.StandingChanged())
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, alert.LevelCritical, res.Alerts[0].Level)
	assert.Equal(t, alert.TypeProbation, res.Alerts[0].Type)

	persisted, _ := e.alerts.ListByStudent(context.Background(), "s-1", 0)
	assert.Len(t, persisted, 1)
}

func TestCompleteEnrollment_RejectsOutOfRangeScore(t *testing.T) {
	e := newEnv(t)
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	for _, score := range []float64{-0.1, 10.01} {
		_, err := e.eval.CompleteEnrollment(context.Background(), en.ID, score)
		assert.True(t, shared.IsRange(err), "score %v", score)
	}

	still, _ := e.enrollments.GetByID(context.Background(), en.ID)
	assert.Equal(t, enrollment.StatusActive, still.Status)
}

func TestCompleteEnrollment_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.eval.CompleteEnrollment(context.Background(), "missing", 5)
	assert.True(t, shared.IsNotFound(err))
}

func TestCompleteEnrollment_RejectsClosedEnrollments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	done := e.enroll(t, "s-1", 3, grading.Scale10)
	_, err := e.eval.CompleteEnrollment(ctx, done.ID, 7)
	require.NoError(t, err)
	_, err = e.eval.CompleteEnrollment(ctx, done.ID, 9)
	assert.True(t, shared.IsStateConflict(err))

	withdrawn := e.enroll(t, "s-1", 3, grading.Scale10)
	_, err = e.roster.Withdraw(ctx, withdrawn.ID)
	require.NoError(t, err)
	_, err = e.eval.CompleteEnrollment(ctx, withdrawn.ID, 9)
	assert.True(t, shared.IsStateConflict(err))
}

func TestCompleteEnrollment_ConcurrentCompletionsSerialize(t *testing.T) {
	e := newEnv(t)
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.eval.CompleteEnrollment(context.Background(), en.ID, 8)
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case shared.IsStateConflict(err):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, len(errs)-1, conflicts)
}

func TestCompleteEnrollment_AccumulatesAcrossCourses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.enroll(t, "s-1", 3, grading.Scale10)
	second := e.enroll(t, "s-1", 1, grading.Scale10)

	_, err := e.eval.CompleteEnrollment(ctx, first.ID, 9.2) // 4.0
	require.NoError(t, err)
	res, err := e.eval.CompleteEnrollment(ctx, second.ID, 5.6) // 2.0
	require.NoError(t, err)

	assert.InDelta(t, 3.5, *res.Student.GPA, 1e-9)
	assert.Equal(t, 4, res.Student.TotalCredits)
}

func TestCompleteEnrollment_PropagatesHandlerFailure(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("alert store down")
	require.NoError(t, e.bus.Attach("broken", messaging.HandlerFunc(func(context.Context, *messaging.GradeChange) error {
		return boom
	}), 5))
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	_, err := e.eval.CompleteEnrollment(context.Background(), en.ID, 9)
	assert.ErrorIs(t, err, boom)
}

type invalidationSpy struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *invalidationSpy) Get(context.Context, string) (*student.Student, error) {
	return nil, shared.ErrNotFound
}

func (c *invalidationSpy) Set(context.Context, *student.Student, time.Duration) error { return nil }

func (c *invalidationSpy) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestRecalculate_RecoversFailedCompletion(t *testing.T) {
	e := newEnv(t)
	cache := &invalidationSpy{}
	e.eval = NewGradeEvaluationService(e.enrollments, e.students, e.nodes, e.bus, e.locker, cache, nil, nil)

	failures := 1
	require.NoError(t, e.bus.Attach("flaky", messaging.HandlerFunc(func(context.Context, *messaging.GradeChange) error {
		if failures > 0 {
			failures--
			return errors.New("db blip")
		}
		return nil
	}), -1))
	en := e.enroll(t, "s-1", 4, grading.Scale10)
	ctx := context.Background()

	_, err := e.eval.CompleteEnrollment(ctx, en.ID, 4.2)
	require.Error(t, err)
	assert.Equal(t, []string{"s-1"}, cache.invalidated)

	_, err = e.eval.CompleteEnrollment(ctx, en.ID, 4.2)
	assert.True(t, shared.IsStateConflict(err))

	res, err := e.eval.Recalculate(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, en.ID, res.Enrollment.ID)
	require.NotNil(t, res.Student.GPA)
	assert.Equal(t, 1.0, *res.Student.GPA)
	assert.Equal(t, standing.Probation, res.Student.Standing)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, alert.LevelCritical, res.Alerts[0].Level)
	assert.Len(t, cache.invalidated, 2)

	stored, err := e.students.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, standing.Probation, stored.Standing)
}

func TestRecalculate_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.eval.Recalculate(ctx, " ")
	assert.True(t, shared.IsValidation(err))

	_, err = e.eval.Recalculate(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))

	e.enroll(t, "s-1", 3, grading.Scale10)
	_, err = e.eval.Recalculate(ctx, "s-1")
	assert.True(t, shared.IsStateConflict(err))
}

// ──────────────────────────────────────────────────────────────────────────
// FinalizeFromTree
// ──────────────────────────────────────────────────────────────────────────

func TestFinalizeFromTree_UsesCompositeScore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	exams, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Exams", Weight: 0.5})
	require.NoError(t, err)
	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, ParentID: exams.ID, Name: "Midterm", Weight: 0.5, RawScore: ptr(8)})
	require.NoError(t, err)
	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, ParentID: exams.ID, Name: "Final", Weight: 0.5, RawScore: ptr(9)})
	require.NoError(t, err)
	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Labs", Weight: 0.5, RawScore: ptr(8.6)})
	require.NoError(t, err)

	res, err := e.eval.FinalizeFromTree(ctx, en.ID)
	require.NoError(t, err)

	assert.InDelta(t, 8.55, *res.Enrollment.FinalScore, 1e-9)
	assert.Equal(t, "A-", res.Enrollment.LetterGrade)
	assert.Equal(t, 3.7, *res.Enrollment.GPAValue)
}

func TestFinalizeFromTree_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	empty := e.enroll(t, "s-1", 3, grading.Scale10)
	_, err := e.eval.FinalizeFromTree(ctx, empty.ID)
	assert.True(t, shared.IsValidation(err))

	partial := e.enroll(t, "s-1", 3, grading.Scale10)
	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: partial.ID, Name: "Only", Weight: 0.6, RawScore: ptr(7)})
	require.NoError(t, err)
	_, err = e.eval.FinalizeFromTree(ctx, partial.ID)
	assert.True(t, shared.IsValidation(err))

	unscored := e.enroll(t, "s-1", 3, grading.Scale10)
	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: unscored.ID, Name: "Exams", Weight: 1})
	require.NoError(t, err)
	_, err = e.eval.FinalizeFromTree(ctx, unscored.ID)
	assert.True(t, shared.IsValidation(err))
}

// ──────────────────────────────────────────────────────────────────────────
// Grade nodes
// ──────────────────────────────────────────────────────────────────────────

func TestGradeNodes_RecordRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	_, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Bad", Weight: 1.5})
	assert.True(t, shared.IsRange(err))

	leaf, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Quiz", Weight: 0.2, RawScore: ptr(6)})
	require.NoError(t, err)

	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, ParentID: leaf.ID, Name: "Child", Weight: 1})
	assert.True(t, shared.IsValidation(err))

	_, err = e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, ParentID: "nope", Name: "Child", Weight: 1})
	assert.True(t, shared.IsNotFound(err))

	second, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Exam", Weight: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)
}

func TestGradeNodes_UpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	exams, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Exams", Weight: 1})
	require.NoError(t, err)
	mid, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, ParentID: exams.ID, Name: "Midterm", Weight: 1, RawScore: ptr(5)})
	require.NoError(t, err)

	updated, err := e.tree.Update(ctx, UpdateGradeNodeCommand{NodeID: mid.ID, RawScore: ptr(7.5)})
	require.NoError(t, err)
	assert.Equal(t, 7.5, *updated.RawScore)

	_, err = e.tree.Update(ctx, UpdateGradeNodeCommand{NodeID: mid.ID, RawScore: ptr(11)})
	assert.True(t, shared.IsRange(err))

	_, err = e.tree.Update(ctx, UpdateGradeNodeCommand{NodeID: exams.ID, RawScore: ptr(9)})
	assert.True(t, shared.IsValidation(err))

	_, err = e.tree.Update(ctx, UpdateGradeNodeCommand{NodeID: mid.ID})
	assert.True(t, shared.IsValidation(err))

	removed, err := e.tree.Delete(ctx, DeleteGradeNodeCommand{NodeID: exams.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{exams.ID, mid.ID}, removed)

	left, _ := e.nodes.ListByEnrollment(ctx, en.ID)
	assert.Empty(t, left)
}

func TestGradeNodes_PositionsSurviveDeletes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	en := e.enroll(t, "s-1", 3, grading.Scale10)

	ids := make(map[string]string)
	for _, name := range []string{"Quiz", "Lab", "Essay"} {
		rec, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: name, Weight: 0.2, RawScore: ptr(7)})
		require.NoError(t, err)
		ids[name] = rec.ID
	}
	_, err := e.tree.Delete(ctx, DeleteGradeNodeCommand{NodeID: ids["Lab"]})
	require.NoError(t, err)

	exam, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "Exam", Weight: 0.6, RawScore: ptr(9)})
	require.NoError(t, err)
	assert.Equal(t, 3, exam.Position)

	records, err := e.nodes.ListByEnrollment(ctx, en.ID)
	require.NoError(t, err)
	var names []string
	var positions []int
	for _, r := range records {
		names = append(names, r.Name)
		positions = append(positions, r.Position)
	}
	assert.Equal(t, []string{"Quiz", "Essay", "Exam"}, names)
	assert.Equal(t, []int{0, 2, 3}, positions)
}

func TestGradeNodes_ClosedEnrollmentIsReadOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	en := e.enroll(t, "s-1", 3, grading.Scale10)
	node, err := e.tree.Record(ctx, RecordGradeNodeCommand{EnrollmentID: en.ID, Name: "All", Weight: 1, RawScore: ptr(7)})
	require.NoError(t, err)

	_, err = e.eval.FinalizeFromTree(ctx, en.ID)
	require.NoError(t, err)

	_, err = e.tree.Update(ctx, UpdateGradeNodeCommand{NodeID: node.ID, RawScore: ptr(9)})
	assert.True(t, shared.IsStateConflict(err))
	_, err = e.tree.Delete(ctx, DeleteGradeNodeCommand{NodeID: node.ID})
	assert.True(t, shared.IsStateConflict(err))
}

// ──────────────────────────────────────────────────────────────────────────
// Students
// ──────────────────────────────────────────────────────────────────────────

func TestStudents_RegisterAndEnroll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	st, err := e.roster.Register(ctx, RegisterStudentCommand{Name: "Aliya"})
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)

	_, err = e.roster.Register(ctx, RegisterStudentCommand{StudentID: st.ID, Name: "Again"})
	assert.True(t, shared.IsAlreadyExists(err))

	_, err = e.roster.Enroll(ctx, CreateEnrollmentCommand{StudentID: st.ID, CourseCode: "X", Credits: 3, GradingScale: "SCALE_100"})
	assert.True(t, shared.IsUnknownScale(err))

	_, err = e.roster.Enroll(ctx, CreateEnrollmentCommand{StudentID: "missing", CourseCode: "X", Credits: 3, GradingScale: "scale_10"})
	assert.True(t, shared.IsNotFound(err))

	_, err = e.roster.Enroll(ctx, CreateEnrollmentCommand{StudentID: st.ID, CourseCode: "X", Credits: 19, GradingScale: "SCALE_10"})
	assert.True(t, shared.IsStateConflict(err))
}

func TestStudents_Graduate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.roster.Register(ctx, RegisterStudentCommand{StudentID: "s-1", Name: "Aliya"})
	require.NoError(t, err)

	st, err := e.roster.Graduate(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, standing.Graduated, st.Standing)

	_, err = e.roster.Graduate(ctx, "s-1")
	assert.True(t, shared.IsStateConflict(err))

	_, err = e.roster.Enroll(ctx, CreateEnrollmentCommand{StudentID: "s-1", CourseCode: "X", Credits: 3, GradingScale: "SCALE_10"})
	assert.True(t, shared.IsStateConflict(err))
}

func TestStudents_ProbationCannotGraduate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	st := student.NewStudent("s-1", "Aliya")
	st.Standing = standing.Probation
	require.NoError(t, e.students.Save(ctx, st))

	_, err := e.roster.Graduate(ctx, "s-1")
	assert.True(t, shared.IsStateConflict(err))
}
