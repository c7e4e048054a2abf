package query

import (
	"math"

	"github.com/alem-hub/gradebook/internal/domain/grading"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREVIEW GRADE QUERY
// Считает оценку по выбранной шкале без сохранения.
// Нужен преподавателю, чтобы увидеть итог до финализации.
// ══════════════════════════════════════════════════════════════════════════════

// PreviewGradeQuery содержит параметры запроса.
type PreviewGradeQuery struct {
	GradingScale string
	Scores       []float64
	Weights      []float64
}

// GradePreviewDTO — результат расчёта.
type GradePreviewDTO struct {
	GradingScale string  `json:"grading_scale"`
	ScaleName    string  `json:"scale_name"`
	WeightedSum  float64 `json:"weighted_sum"`

	// ─────────────────────────────────────────────────────────────────────────
	// Результат шкалы
	// ─────────────────────────────────────────────────────────────────────────

	Result    float64 `json:"result"`
	MaxGrade  float64 `json:"max_grade"`
	GPA       float64 `json:"gpa"`
	Letter    string  `json:"letter"`
	IsPassing bool    `json:"is_passing"`
}

// PreviewGradeHandler обрабатывает запрос предварительного расчёта.
type PreviewGradeHandler struct{}

// NewPreviewGradeHandler создаёт обработчик.
func NewPreviewGradeHandler() *PreviewGradeHandler {
	return &PreviewGradeHandler{}
}

// Handle выполняет запрос. GPA, буква и зачёт считаются по взвешенной сумме
// на 10-балльной шкале, а Result — собственный итог шкалы.
func (h *PreviewGradeHandler) Handle(q PreviewGradeQuery) (*GradePreviewDTO, error) {
	strategy, err := grading.GetStrategy(q.GradingScale)
	if err != nil {
		return nil, err
	}

	sum, err := grading.WeightedSum(q.Scores, q.Weights)
	if err != nil {
		return nil, err
	}
	sum = math.Round(sum*100) / 100
	result, err := strategy.Calculate(q.Scores, q.Weights)
	if err != nil {
		return nil, err
	}

	return &GradePreviewDTO{
		GradingScale: strategy.Scale().String(),
		ScaleName:    strategy.Name(),
		WeightedSum:  sum,
		Result:       result,
		MaxGrade:     strategy.MaxGrade(),
		GPA:          strategy.GPA(sum),
		Letter:       strategy.LetterGrade(sum),
		IsPassing:    strategy.IsPassing(sum),
	}, nil
}
