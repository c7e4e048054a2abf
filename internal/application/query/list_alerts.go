package query

import (
	"context"
	"strings"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ALERTS QUERY
// Возвращает оповещения студента, новые первыми.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 200
)

// ListAlertsQuery содержит параметры запроса.
type ListAlertsQuery struct {
	StudentID string

	// Limit — сколько записей вернуть (по умолчанию 50, максимум 200).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q ListAlertsQuery) Validate() error {
	if strings.TrimSpace(q.StudentID) == "" {
		return shared.NewValidationError("alert", "ListAlerts", "student_id is required")
	}
	if q.Limit < 0 || q.Limit > maxAlertLimit {
		return shared.NewRangeError("alert", "ListAlerts", "limit", float64(q.Limit), 0, maxAlertLimit)
	}
	return nil
}

// AlertsDTO — список оповещений.
type AlertsDTO struct {
	StudentID string         `json:"student_id"`
	Alerts    []*alert.Alert `json:"alerts"`
	Count     int            `json:"count"`
}

// ListAlertsHandler обрабатывает запрос списка оповещений.
type ListAlertsHandler struct {
	alertRepo alert.Repository
}

// NewListAlertsHandler создаёт обработчик.
func NewListAlertsHandler(alertRepo alert.Repository) *ListAlertsHandler {
	return &ListAlertsHandler{alertRepo: alertRepo}
}

// Handle выполняет запрос.
func (h *ListAlertsHandler) Handle(ctx context.Context, q ListAlertsQuery) (*AlertsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultAlertLimit
	}

	alerts, err := h.alertRepo.ListByStudent(ctx, q.StudentID, limit)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []*alert.Alert{}
	}

	return &AlertsDTO{
		StudentID: q.StudentID,
		Alerts:    alerts,
		Count:     len(alerts),
	}, nil
}
