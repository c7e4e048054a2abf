package query

import (
	"context"
	"fmt"
	"math"

	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GRADE TREE QUERY
// Возвращает дерево оценок записи с вычисленными баллами каждого узла.
// Баллы пересчитываются при каждом чтении.
// ══════════════════════════════════════════════════════════════════════════════

// GradeNodeDTO — узел дерева оценок.
type GradeNodeDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Weight          float64         `json:"weight"`
	RawScore        *float64        `json:"raw_score,omitempty"`
	CalculatedScore *float64        `json:"calculated_score"`
	WeightedValue   *float64        `json:"weighted_value"`
	Children        []*GradeNodeDTO `json:"children,omitempty"`
}

// GradeTreeDTO — дерево оценок записи.
type GradeTreeDTO struct {
	EnrollmentID    string          `json:"enrollment_id"`
	CourseCode      string          `json:"course_code"`
	GradingScale    string          `json:"grading_scale"`
	Status          string          `json:"status"`
	Roots           []*GradeNodeDTO `json:"roots"`
	CompositeScore  *float64        `json:"composite_score"`
	WeightsSumToOne bool            `json:"weights_sum_to_one"`
	ProjectedLetter string          `json:"projected_letter,omitempty"`
	ProjectedGPA    *float64        `json:"projected_gpa,omitempty"`
}

// GetGradeTreeHandler обрабатывает запрос дерева оценок.
type GetGradeTreeHandler struct {
	enrollmentRepo enrollment.Repository
	nodeRepo       gradetree.Repository
}

// NewGetGradeTreeHandler создаёт обработчик.
func NewGetGradeTreeHandler(enrollmentRepo enrollment.Repository, nodeRepo gradetree.Repository) *GetGradeTreeHandler {
	return &GetGradeTreeHandler{enrollmentRepo: enrollmentRepo, nodeRepo: nodeRepo}
}

// Handle выполняет запрос.
func (h *GetGradeTreeHandler) Handle(ctx context.Context, enrollmentID string) (*GradeTreeDTO, error) {
	e, err := h.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	records, err := h.nodeRepo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grade tree: %w", err)
	}
	roots, err := gradetree.Build(records)
	if err != nil {
		return nil, err
	}

	dto := &GradeTreeDTO{
		EnrollmentID:    e.ID,
		CourseCode:      e.CourseCode,
		GradingScale:    string(e.GradingScale),
		Status:          string(e.Status),
		Roots:           make([]*GradeNodeDTO, 0, len(roots)),
		WeightsSumToOne: len(roots) > 0 && gradetree.RootWeightsSumToOne(roots),
	}
	for _, r := range roots {
		dto.Roots = append(dto.Roots, toNodeDTO(r))
	}

	// Прогноз имеет смысл только для корректного набора весов.
	if score, ok := gradetree.CompositeScore(roots); ok {
		dto.CompositeScore = &score
		if dto.WeightsSumToOne && e.GradingScale.IsValid() {
			// Округление как при финализации, иначе 8.9999 даст другую букву.
			rounded := math.Round(score*100) / 100
			strategy := grading.For(e.GradingScale)
			gpa := strategy.GPA(rounded)
			dto.ProjectedGPA = &gpa
			dto.ProjectedLetter = strategy.LetterGrade(rounded)
		}
	}

	return dto, nil
}

func toNodeDTO(n *gradetree.Node) *GradeNodeDTO {
	dto := &GradeNodeDTO{
		ID:     n.ID,
		Name:   n.Name,
		Weight: n.Weight(),
	}
	if v, ok := n.RawScore(); ok {
		dto.RawScore = &v
	}
	if v, ok := n.CalculatedScore(); ok {
		dto.CalculatedScore = &v
	}
	if v, ok := n.WeightedValue(); ok {
		dto.WeightedValue = &v
	}
	for _, c := range n.Children() {
		dto.Children = append(dto.Children, toNodeDTO(c))
	}
	return dto
}
