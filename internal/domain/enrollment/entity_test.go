package enrollment

import (
	"testing"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func active() *Enrollment {
	return &Enrollment{
		ID:           "e-1",
		StudentID:    "s-1",
		CourseCode:   "CS101",
		Credits:      3,
		GradingScale: grading.Scale10,
		Status:       StatusActive,
	}
}

func TestComplete_RecordsOutcome(t *testing.T) {
	e := active()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, e.Complete(9.5, 4.0, "A", at))

	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, 9.5, *e.FinalScore)
	assert.Equal(t, 4.0, *e.GPAValue)
	assert.Equal(t, "A", e.LetterGrade)
	assert.Equal(t, at, *e.CompletedAt)
}

func TestComplete_RejectsClosedEnrollments(t *testing.T) {
	done := active()
	require.NoError(t, done.Complete(7, 3, "B", time.Now()))
	err := done.Complete(8, 3.5, "B+", time.Now())
	assert.True(t, shared.IsStateConflict(err))
	assert.Equal(t, "B", done.LetterGrade)

	withdrawn := active()
	require.NoError(t, withdrawn.Withdraw())
	assert.True(t, shared.IsStateConflict(withdrawn.Complete(8, 3.5, "B+", time.Now())))
	assert.Nil(t, withdrawn.GPAValue)
}

func TestWithdraw_OnlyFromActive(t *testing.T) {
	e := active()
	require.NoError(t, e.Withdraw())
	assert.Equal(t, StatusWithdrawn, e.Status)
	assert.True(t, shared.IsStateConflict(e.Withdraw()))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, active().Validate())

	noCredits := active()
	noCredits.Credits = 0
	assert.True(t, shared.IsValidation(noCredits.Validate()))

	badScale := active()
	badScale.GradingScale = "SCALE_100"
	assert.True(t, shared.IsUnknownScale(badScale.Validate()))
}

func TestClone_IsIndependent(t *testing.T) {
	e := active()
	require.NoError(t, e.Complete(6, 2.5, "C+", time.Now()))

	c := e.Clone()
	*c.GPAValue = 1.0

	assert.Equal(t, 2.5, *e.GPAValue)
}

func completed(id string, credits int, gpa float64) *Enrollment {
	v := gpa
	return &Enrollment{ID: id, StudentID: "s-1", Credits: credits, Status: StatusCompleted, GPAValue: &v}
}

func TestCumulativeGPA(t *testing.T) {
	t.Run("no completed enrollments", func(t *testing.T) {
		gpa, credits := CumulativeGPA([]*Enrollment{active()})
		assert.Nil(t, gpa)
		assert.Equal(t, 0, credits)
	})

	t.Run("credit weighted mean", func(t *testing.T) {
		gpa, credits := CumulativeGPA([]*Enrollment{
			completed("a", 3, 4.0),
			completed("b", 1, 2.0),
			active(),
		})
		require.NotNil(t, gpa)
		assert.InDelta(t, 3.5, *gpa, 1e-9)
		assert.Equal(t, 4, credits)
	})

	t.Run("failed courses add points but not credits", func(t *testing.T) {
		gpa, credits := CumulativeGPA([]*Enrollment{
			completed("a", 4, 3.0),
			completed("f", 2, 0.0),
		})
		require.NotNil(t, gpa)
		assert.InDelta(t, 3.0, *gpa, 1e-9)
		assert.Equal(t, 4, credits)
	})

	t.Run("only failed courses", func(t *testing.T) {
		gpa, credits := CumulativeGPA([]*Enrollment{completed("f", 3, 0.0)})
		assert.Nil(t, gpa)
		assert.Equal(t, 0, credits)
	})
}

func TestLatestCompleted(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	older := completed("e-1", 3, 3.0)
	older.CompletedAt = &base
	later := base.Add(time.Hour)
	newer := completed("e-2", 3, 2.0)
	newer.CompletedAt = &later

	assert.Nil(t, LatestCompleted(nil))
	assert.Nil(t, LatestCompleted([]*Enrollment{active()}))
	assert.Equal(t, "e-2", LatestCompleted([]*Enrollment{older, active(), newer}).ID)
	assert.Equal(t, "e-2", LatestCompleted([]*Enrollment{newer, older}).ID)
}
