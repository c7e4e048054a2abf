package eventhandler

import (
	"context"
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// STANDING CHANGE HANDLER
// Сообщает студенту о смене статуса и о заметном изменении GPA.
// Выполняется после пересчёта и оценки риска.
// ═══════════════════════════════════════════════════════════════════════════

// StandingChangeConfig содержит пороги обработчика.
type StandingChangeConfig struct {
	// GPADelta — минимальное изменение GPA для оповещения о падении/росте.
	GPADelta float64
}

// DefaultStandingChangeConfig возвращает конфигурацию по умолчанию.
func DefaultStandingChangeConfig() StandingChangeConfig {
	return StandingChangeConfig{GPADelta: 0.5}
}

// StandingChangeHandler оповещает о смене статуса и скачках GPA.
type StandingChangeHandler struct {
	alerts alert.Requester
	logger *logger.Logger
	config StandingChangeConfig
}

// NewStandingChangeHandler создаёт обработчик смены статуса.
func NewStandingChangeHandler(alerts alert.Requester, log *logger.Logger, config StandingChangeConfig) *StandingChangeHandler {
	if log == nil {
		log = logger.NewNop()
	}
	if config.GPADelta <= 0 {
		config = DefaultStandingChangeConfig()
	}
	return &StandingChangeHandler{
		alerts: alerts,
		logger: log.With(logger.Handler(NameStandingChange)),
		config: config,
	}
}

// Handle реализует messaging.Handler.
func (h *StandingChangeHandler) Handle(ctx context.Context, change *messaging.GradeChange) error {
	st := change.Student
	prev := change.Previous

	var requests []alert.Request

	// 1. Смена статуса: ухудшение — WARNING, улучшение — INFO
	if change.StandingChanged() {
		level := alert.LevelInfo
		if st.Standing.Severity() > prev.Standing.Severity() {
			level = alert.LevelWarning
		}
		requests = append(requests, alert.Request{
			StudentID: st.ID,
			Level:     level,
			Type:      alert.TypeStatusChange,
			Message:   fmt.Sprintf("Academic standing changed from %s to %s", prev.Standing, st.Standing),
		})
	}

	// 2. Заметное изменение GPA
	if prev.GPA != nil && st.GPA != nil {
		delta := *st.GPA - *prev.GPA
		switch {
		case delta <= -h.config.GPADelta:
			requests = append(requests, alert.Request{
				StudentID: st.ID,
				Level:     alert.LevelWarning,
				Type:      alert.TypeGPADrop,
				Message:   fmt.Sprintf("GPA dropped from %.2f to %.2f", *prev.GPA, *st.GPA),
			})
		case delta >= h.config.GPADelta:
			requests = append(requests, alert.Request{
				StudentID: st.ID,
				Level:     alert.LevelInfo,
				Type:      alert.TypeImprovement,
				Message:   fmt.Sprintf("GPA improved from %.2f to %.2f", *prev.GPA, *st.GPA),
			})
		}
	}

	// 3. Отправляем запросы
	for _, req := range requests {
		a, err := h.alerts.Request(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to request %s alert: %w", req.Type, err)
		}
		change.AddAlert(a)
	}

	if len(requests) > 0 {
		h.logger.Debug("standing alerts requested",
			logger.StudentID(st.ID),
			logger.Int("count", len(requests)),
		)
	}
	return nil
}
