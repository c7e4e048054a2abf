package eventhandler

import (
	"context"
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// RISK DETECTION HANDLER
// Запрашивает оповещение, если новый GPA ниже порогов:
//   GPA < 1.5 → CRITICAL / PROBATION
//   GPA < 2.0 → HIGH / LOW_GPA
// ═══════════════════════════════════════════════════════════════════════════

// RiskDetectionHandler оценивает риск по новому GPA.
type RiskDetectionHandler struct {
	alerts alert.Requester
	logger *logger.Logger
}

// NewRiskDetectionHandler создаёт обработчик обнаружения риска.
func NewRiskDetectionHandler(alerts alert.Requester, log *logger.Logger) *RiskDetectionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &RiskDetectionHandler{
		alerts: alerts,
		logger: log.With(logger.Handler(NameRiskDetection)),
	}
}

// Classify возвращает уровень и тип оповещения для GPA.
// ok=false, если оповещение не нужно.
func Classify(gpa *float64) (level alert.Level, typ alert.Type, ok bool) {
	if gpa == nil {
		return "", "", false
	}
	switch {
	case *gpa < standing.AtRiskThreshold:
		return alert.LevelCritical, alert.TypeProbation, true
	case *gpa < standing.NormalThreshold:
		return alert.LevelHigh, alert.TypeLowGPA, true
	}
	return "", "", false
}

// Handle реализует messaging.Handler.
func (h *RiskDetectionHandler) Handle(ctx context.Context, change *messaging.GradeChange) error {
	st := change.Student

	level, typ, ok := Classify(st.GPA)
	if !ok {
		return nil
	}

	a, err := h.alerts.Request(ctx, alert.Request{
		StudentID: st.ID,
		Level:     level,
		Type:      typ,
		Message:   fmt.Sprintf("Cumulative GPA %.2f is below %.1f", *st.GPA, threshold(typ)),
	})
	if err != nil {
		return fmt.Errorf("failed to request alert: %w", err)
	}
	change.AddAlert(a)

	h.logger.Info("academic risk detected",
		logger.StudentID(st.ID),
		logger.Float64("gpa", *st.GPA),
		logger.String("level", string(level)),
	)
	return nil
}

func threshold(typ alert.Type) float64 {
	if typ == alert.TypeProbation {
		return standing.AtRiskThreshold
	}
	return standing.NormalThreshold
}
