// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STANDING QUERY
// Возвращает GPA, кредиты, статус студента и политику статуса.
// Читается через кеш; кеш сбрасывают команды, меняющие GPA или статус.
// ══════════════════════════════════════════════════════════════════════════════

// GetStandingQuery содержит параметры запроса.
type GetStandingQuery struct {
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q GetStandingQuery) Validate() error {
	if strings.TrimSpace(q.StudentID) == "" {
		return shared.NewValidationError("student", "GetStanding", "student_id is required")
	}
	return nil
}

// StandingDTO — представление академического статуса.
type StandingDTO struct {
	StudentID    string          `json:"student_id"`
	Name         string          `json:"name"`
	GPA          *float64        `json:"gpa"`
	TotalCredits int             `json:"total_credits"`
	Standing     standing.State  `json:"standing"`
	Policy       standing.Policy `json:"policy"`
	Cached       bool            `json:"cached"`
}

// GetStandingHandler обрабатывает запрос статуса.
type GetStandingHandler struct {
	studentRepo student.Repository
	cache       student.Cache
	cacheTTL    time.Duration
	logger      *logger.Logger
}

// NewGetStandingHandler создаёт обработчик. cache может быть nil.
func NewGetStandingHandler(studentRepo student.Repository, cache student.Cache, cacheTTL time.Duration, log *logger.Logger) *GetStandingHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &GetStandingHandler{
		studentRepo: studentRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      log.With(logger.Component("get_standing")),
	}
}

// Handle выполняет запрос.
func (h *GetStandingHandler) Handle(ctx context.Context, q GetStandingQuery) (*StandingDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	// 1. Пробуем кеш
	if h.cache != nil {
		if st, err := h.cache.Get(ctx, q.StudentID); err == nil {
			dto := toStandingDTO(st)
			dto.Cached = true
			return dto, nil
		}
	}

	// 2. Читаем из хранилища
	st, err := h.studentRepo.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	// 3. Кладём в кеш; ошибка кеша не должна ломать чтение
	if h.cache != nil && h.cacheTTL > 0 {
		if err := h.cache.Set(ctx, st, h.cacheTTL); err != nil {
			h.logger.Warn("failed to cache standing", logger.StudentID(st.ID), logger.Err(err))
		} else {
			st = h.verifyCached(ctx, st)
		}
	}

	return toStandingDTO(st), nil
}

// verifyCached перечитывает запись после Set. Если между чтением и Set
// прошла запись (и её Invalidate), в кеше лежит устаревшая версия:
// сбрасываем её и возвращаем свежую.
func (h *GetStandingHandler) verifyCached(ctx context.Context, cached *student.Student) *student.Student {
	fresh, err := h.studentRepo.GetByID(ctx, cached.ID)
	if err != nil {
		if ierr := h.cache.Invalidate(ctx, cached.ID); ierr != nil {
			h.logger.Warn("failed to drop unverified standing", logger.StudentID(cached.ID), logger.Err(ierr))
		}
		return cached
	}
	if sameStanding(cached, fresh) {
		return cached
	}

	if err := h.cache.Invalidate(ctx, cached.ID); err != nil {
		h.logger.Warn("failed to drop stale standing", logger.StudentID(cached.ID), logger.Err(err))
	}
	h.logger.Debug("standing changed while caching", logger.StudentID(cached.ID))
	return fresh
}

func sameStanding(a, b *student.Student) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) || a.Standing != b.Standing || a.TotalCredits != b.TotalCredits {
		return false
	}
	if (a.GPA == nil) != (b.GPA == nil) {
		return false
	}
	return a.GPA == nil || *a.GPA == *b.GPA
}

func toStandingDTO(st *student.Student) *StandingDTO {
	return &StandingDTO{
		StudentID:    st.ID,
		Name:         st.Name,
		GPA:          st.GPA,
		TotalCredits: st.TotalCredits,
		Standing:     st.Standing,
		Policy:       st.Standing.Policy(),
	}
}
