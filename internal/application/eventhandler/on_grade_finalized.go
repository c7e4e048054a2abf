// Package eventhandler содержит обработчики изменения оценок,
// подключаемые к шине уведомлений.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/internal/infrastructure/metrics"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// Имена и приоритеты обработчиков. Меньший приоритет выполняется раньше.
const (
	NameRecalculateGPA     = "recalculate_gpa"
	PriorityRecalculateGPA = 0

	NameRiskDetection     = "risk_detection"
	PriorityRiskDetection = 10

	NameStandingChange     = "standing_change"
	PriorityStandingChange = 20
)

// ═══════════════════════════════════════════════════════════════════════════
// RECALCULATE GPA HANDLER
// Пересчитывает накопленный GPA студента после завершения курса
// и переводит академический статус через автомат standing.
//
// Должен выполняться первым: остальные обработчики читают уже новый GPA
// из общего change.Student.
// ═══════════════════════════════════════════════════════════════════════════

// RecalculateGPAHandler пересчитывает GPA и статус.
type RecalculateGPAHandler struct {
	enrollmentRepo enrollment.Repository
	studentRepo    student.Repository
	metrics        *metrics.Collector
	logger         *logger.Logger
}

// NewRecalculateGPAHandler создаёт обработчик пересчёта GPA.
func NewRecalculateGPAHandler(
	enrollmentRepo enrollment.Repository,
	studentRepo student.Repository,
	collector *metrics.Collector,
	log *logger.Logger,
) *RecalculateGPAHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &RecalculateGPAHandler{
		enrollmentRepo: enrollmentRepo,
		studentRepo:    studentRepo,
		metrics:        collector,
		logger:         log.With(logger.Handler(NameRecalculateGPA)),
	}
}

// Handle реализует messaging.Handler.
func (h *RecalculateGPAHandler) Handle(ctx context.Context, change *messaging.GradeChange) error {
	st := change.Student

	// 1. Загружаем все записи студента
	list, err := h.enrollmentRepo.ListByStudent(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("failed to list enrollments: %w", err)
	}

	// 2. Считаем накопленный GPA
	gpa, credits := enrollment.CumulativeGPA(list)

	// 3. Сохраняем GPA и кредиты
	if err := h.studentRepo.UpdateGPA(ctx, st.ID, gpa, credits); err != nil {
		return fmt.Errorf("failed to update gpa: %w", err)
	}
	st.ApplyGPA(gpa, credits)

	// 4. Переводим статус и сохраняем, если он изменился
	next := standing.Next(st.Standing, st.GPA)
	from := st.Standing
	if st.ApplyStanding(next) {
		if err := h.studentRepo.UpdateStanding(ctx, st.ID, next); err != nil {
			return fmt.Errorf("failed to update standing: %w", err)
		}
		h.metrics.RecordStandingChange(from.String(), next.String())
		h.logger.Info("standing changed",
			logger.StudentID(st.ID),
			logger.String("from", from.String()),
			logger.StandingState(next.String()),
		)
	}

	h.logger.Debug("gpa recalculated",
		logger.StudentID(st.ID),
		logger.OptionalFloat64("gpa", st.GPA),
		logger.Int("total_credits", credits),
	)
	return nil
}
