package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string]*student.Student
	sets int
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string]*student.Student)} }

func (c *mapCache) Get(_ context.Context, id string) (*student.Student, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.data[id]
	if !ok {
		return nil, errors.New("miss")
	}
	return st.Clone(), nil
}

func (c *mapCache) Set(_ context.Context, st *student.Student, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[st.ID] = st.Clone()
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	return nil
}

func ptr(v float64) *float64 { return &v }

// ──────────────────────────────────────────────────────────────────────────
// GetStanding
// ──────────────────────────────────────────────────────────────────────────

func TestGetStanding_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStudentRepository()
	st := student.NewStudent("s-1", "Aida")
	st.ApplyGPA(ptr(1.7), 6)
	st.ApplyStanding(standing.AtRisk)
	require.NoError(t, repo.Save(ctx, st))

	cache := newMapCache()
	h := NewGetStandingHandler(repo, cache, time.Minute, nil)

	first, err := h.Handle(ctx, GetStandingQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, standing.AtRisk, first.Standing)
	assert.InDelta(t, 1.7, *first.GPA, 1e-9)
	assert.Equal(t, 6, first.TotalCredits)
	assert.Equal(t, 15, first.Policy.MaxCreditHours)
	assert.True(t, first.Policy.RequiresCounseling)

	second, err := h.Handle(ctx, GetStandingQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, cache.sets)
}

// racingCache lets a writer land between the repository read and Set.
type racingCache struct {
	*mapCache
	beforeSet func()
}

func (c *racingCache) Set(ctx context.Context, st *student.Student, ttl time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet()
		c.beforeSet = nil
	}
	return c.mapCache.Set(ctx, st, ttl)
}

func TestGetStanding_DropsStandingOverwrittenWhileCaching(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStudentRepository()
	require.NoError(t, repo.Save(ctx, student.NewStudent("s-1", "Aida")))

	cache := &racingCache{mapCache: newMapCache()}
	cache.beforeSet = func() {
		require.NoError(t, repo.UpdateGPA(ctx, "s-1", ptr(1.2), 4))
		require.NoError(t, repo.UpdateStanding(ctx, "s-1", standing.Probation))
		require.NoError(t, cache.Invalidate(ctx, "s-1"))
	}
	h := NewGetStandingHandler(repo, cache, time.Minute, nil)

	dto, err := h.Handle(ctx, GetStandingQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, standing.Probation, dto.Standing)
	assert.InDelta(t, 1.2, *dto.GPA, 1e-9)

	_, err = cache.Get(ctx, "s-1")
	assert.Error(t, err)

	again, err := h.Handle(ctx, GetStandingQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, standing.Probation, again.Standing)
}

func TestGetStanding_WithoutCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStudentRepository()
	require.NoError(t, repo.Save(ctx, student.NewStudent("s-1", "Aida")))

	h := NewGetStandingHandler(repo, nil, 0, nil)
	dto, err := h.Handle(ctx, GetStandingQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Nil(t, dto.GPA)
	assert.Equal(t, standing.Normal, dto.Standing)
	assert.True(t, dto.Policy.CanRegister)
}

func TestGetStanding_Errors(t *testing.T) {
	h := NewGetStandingHandler(memory.NewStudentRepository(), nil, 0, nil)

	_, err := h.Handle(context.Background(), GetStandingQuery{StudentID: " "})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetStandingQuery{StudentID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

// ──────────────────────────────────────────────────────────────────────────
// GetGradeTree
// ──────────────────────────────────────────────────────────────────────────

func seedTree(t *testing.T) (*memory.EnrollmentRepository, *memory.GradeNodeRepository) {
	t.Helper()
	ctx := context.Background()
	enrollments := memory.NewEnrollmentRepository()
	nodes := memory.NewGradeNodeRepository()

	require.NoError(t, enrollments.Save(ctx, &enrollment.Enrollment{
		ID: "e-1", StudentID: "s-1", CourseCode: "CS101", Credits: 3,
		GradingScale: grading.Scale10, Status: enrollment.StatusActive,
	}))

	records := []gradetree.NodeRecord{
		{ID: "hw", EnrollmentID: "e-1", Name: "Homework", Weight: 0.4, Position: 0},
		{ID: "hw1", EnrollmentID: "e-1", ParentID: "hw", Name: "HW1", Weight: 0.5, RawScore: ptr(8.0), Position: 0},
		{ID: "hw2", EnrollmentID: "e-1", ParentID: "hw", Name: "HW2", Weight: 0.5, RawScore: ptr(10.0), Position: 1},
		{ID: "exam", EnrollmentID: "e-1", Name: "Exam", Weight: 0.6, RawScore: ptr(8.0), Position: 1},
	}
	for _, rec := range records {
		require.NoError(t, nodes.Save(ctx, rec))
	}
	return enrollments, nodes
}

func TestGetGradeTree_CalculatesScores(t *testing.T) {
	enrollments, nodes := seedTree(t)
	h := NewGetGradeTreeHandler(enrollments, nodes)

	dto, err := h.Handle(context.Background(), "e-1")
	require.NoError(t, err)

	require.Len(t, dto.Roots, 2)
	hw := dto.Roots[0]
	assert.Equal(t, "Homework", hw.Name)
	assert.Nil(t, hw.RawScore)
	require.NotNil(t, hw.CalculatedScore)
	assert.InDelta(t, 9.0, *hw.CalculatedScore, 1e-9)
	assert.InDelta(t, 3.6, *hw.WeightedValue, 1e-9)
	assert.Len(t, hw.Children, 2)

	// 0.4·9.0 + 0.6·8.0 = 8.4
	assert.True(t, dto.WeightsSumToOne)
	require.NotNil(t, dto.CompositeScore)
	assert.InDelta(t, 8.4, *dto.CompositeScore, 1e-9)
	assert.Equal(t, "B+", dto.ProjectedLetter)
	assert.InDelta(t, 3.5, *dto.ProjectedGPA, 1e-9)
	assert.Equal(t, "SCALE_10", dto.GradingScale)
}

func TestGetGradeTree_EmptyTree(t *testing.T) {
	ctx := context.Background()
	enrollments := memory.NewEnrollmentRepository()
	require.NoError(t, enrollments.Save(ctx, &enrollment.Enrollment{
		ID: "e-1", StudentID: "s-1", CourseCode: "CS101", Credits: 3,
		GradingScale: grading.PassFail, Status: enrollment.StatusActive,
	}))

	dto, err := NewGetGradeTreeHandler(enrollments, memory.NewGradeNodeRepository()).Handle(ctx, "e-1")
	require.NoError(t, err)
	assert.Empty(t, dto.Roots)
	assert.Nil(t, dto.CompositeScore)
	assert.False(t, dto.WeightsSumToOne)
	assert.Empty(t, dto.ProjectedLetter)
}

func TestGetGradeTree_UnknownEnrollment(t *testing.T) {
	h := NewGetGradeTreeHandler(memory.NewEnrollmentRepository(), memory.NewGradeNodeRepository())
	_, err := h.Handle(context.Background(), "nope")
	assert.True(t, shared.IsNotFound(err))
}

// ──────────────────────────────────────────────────────────────────────────
// ListAlerts
// ──────────────────────────────────────────────────────────────────────────

func TestListAlerts_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAlertRepository()
	for i, typ := range []alert.Type{alert.TypeLowGPA, alert.TypeGPADrop, alert.TypeProbation} {
		require.NoError(t, repo.Save(ctx, &alert.Alert{
			ID: string(rune('a' + i)), StudentID: "s-1", Level: alert.LevelHigh, Type: typ,
		}))
	}
	h := NewListAlertsHandler(repo)

	dto, err := h.Handle(ctx, ListAlertsQuery{StudentID: "s-1", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, dto.Count)
	assert.Equal(t, alert.TypeProbation, dto.Alerts[0].Type)
	assert.Equal(t, alert.TypeGPADrop, dto.Alerts[1].Type)

	all, err := h.Handle(ctx, ListAlertsQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Count)
}

func TestListAlerts_EmptyIsNotNil(t *testing.T) {
	dto, err := NewListAlertsHandler(memory.NewAlertRepository()).Handle(context.Background(), ListAlertsQuery{StudentID: "s-9"})
	require.NoError(t, err)
	assert.NotNil(t, dto.Alerts)
	assert.Zero(t, dto.Count)
}

func TestListAlerts_Validation(t *testing.T) {
	h := NewListAlertsHandler(memory.NewAlertRepository())

	_, err := h.Handle(context.Background(), ListAlertsQuery{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ListAlertsQuery{StudentID: "s-1", Limit: 500})
	assert.True(t, shared.IsRange(err))
}

// ──────────────────────────────────────────────────────────────────────────
// PreviewGrade
// ──────────────────────────────────────────────────────────────────────────

func TestPreviewGrade(t *testing.T) {
	h := NewPreviewGradeHandler()

	tests := []struct {
		name    string
		scale   string
		scores  []float64
		result  float64
		gpa     float64
		letter  string
		passing bool
	}{
		{"scale10", "scale_10", []float64{9, 8}, 8.5, 3.7, "A-", true},
		{"scale4", "SCALE_4", []float64{9, 8}, 3.7, 3.7, "A-", true},
		{"pass_fail pass", "PASS_FAIL", []float64{6, 4}, 1.0, 1.0, "P", true},
		{"pass_fail fail", "PASS_FAIL", []float64{5, 4}, 0.0, 0.0, "F", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto, err := h.Handle(PreviewGradeQuery{GradingScale: tt.scale, Scores: tt.scores, Weights: []float64{0.5, 0.5}})
			require.NoError(t, err)
			assert.InDelta(t, tt.result, dto.Result, 1e-9)
			assert.InDelta(t, tt.gpa, dto.GPA, 1e-9)
			assert.Equal(t, tt.letter, dto.Letter)
			assert.Equal(t, tt.passing, dto.IsPassing)
		})
	}
}

func TestPreviewGrade_Errors(t *testing.T) {
	h := NewPreviewGradeHandler()

	_, err := h.Handle(PreviewGradeQuery{GradingScale: "SCALE_100", Scores: []float64{5}, Weights: []float64{1}})
	assert.True(t, shared.IsUnknownScale(err))

	_, err = h.Handle(PreviewGradeQuery{GradingScale: "SCALE_10", Scores: []float64{5, 5}, Weights: []float64{0.5, 0.4}})
	assert.True(t, shared.IsValidation(err))
}

func TestPreviewGrade_ResultMatchesLetterAtBreakpoint(t *testing.T) {
	h := NewPreviewGradeHandler()

	dto, err := h.Handle(PreviewGradeQuery{
		GradingScale: "SCALE_4",
		Scores:       []float64{8, 8, 8},
		Weights:      []float64{0.7, 0.2, 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, dto.WeightedSum)
	assert.Equal(t, 3.5, dto.Result)
	assert.Equal(t, dto.Result, dto.GPA)
	assert.Equal(t, "B+", dto.Letter)
}
