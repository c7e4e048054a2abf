// Package enrollment содержит запись студента на курс и её жизненный цикл:
// ACTIVE → COMPLETED (с итоговой оценкой) или ACTIVE → WITHDRAWN.
package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

const domainName = "enrollment"

// Status — состояние записи на курс.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusWithdrawn Status = "WITHDRAWN"
)

// IsValid проверяет, что статус известен.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusWithdrawn:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment — запись студента на курс.
type Enrollment struct {
	ID           string        `json:"id"`
	StudentID    string        `json:"student_id"`
	CourseCode   string        `json:"course_code"`
	Credits      int           `json:"credits"`
	GradingScale grading.Scale `json:"grading_scale"`
	Status       Status        `json:"status"`

	// Заполняются при завершении.
	FinalScore  *float64   `json:"final_score,omitempty"`
	LetterGrade string     `json:"letter_grade,omitempty"`
	GPAValue    *float64   `json:"gpa_value,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate проверяет инварианты записи.
func (e *Enrollment) Validate() error {
	if e.ID == "" || e.StudentID == "" {
		return shared.NewDomainError(domainName, "Validate", shared.ErrEmptyValue, "id and student id are required")
	}
	if e.Credits <= 0 {
		return shared.NewValidationError(domainName, "Validate", fmt.Sprintf("credits must be positive, got %d", e.Credits))
	}
	if _, err := grading.ParseScale(string(e.GradingScale)); err != nil {
		return err
	}
	if !e.Status.IsValid() {
		return shared.NewValidationError(domainName, "Validate", fmt.Sprintf("unknown status %q", e.Status))
	}
	return nil
}

// CanComplete возвращает ошибку конфликта состояния, если запись уже закрыта.
func (e *Enrollment) CanComplete() error {
	switch e.Status {
	case StatusCompleted:
		return shared.NewStateConflictError(domainName, "Complete",
			fmt.Sprintf("enrollment %s is already completed", e.ID))
	case StatusWithdrawn:
		return shared.NewStateConflictError(domainName, "Complete",
			fmt.Sprintf("enrollment %s is withdrawn", e.ID))
	}
	return nil
}

// Complete фиксирует итог курса.
func (e *Enrollment) Complete(finalScore, gpa float64, letter string, at time.Time) error {
	if err := e.CanComplete(); err != nil {
		return err
	}
	e.FinalScore = &finalScore
	e.GPAValue = &gpa
	e.LetterGrade = letter
	e.Status = StatusCompleted
	e.CompletedAt = &at
	return nil
}

// Withdraw отзывает активную запись.
func (e *Enrollment) Withdraw() error {
	if e.Status != StatusActive {
		return shared.NewStateConflictError(domainName, "Withdraw",
			fmt.Sprintf("enrollment %s is %s", e.ID, e.Status))
	}
	e.Status = StatusWithdrawn
	return nil
}

// Clone возвращает независимую копию.
func (e *Enrollment) Clone() *Enrollment {
	c := *e
	if e.FinalScore != nil {
		v := *e.FinalScore
		c.FinalScore = &v
	}
	if e.GPAValue != nil {
		v := *e.GPAValue
		c.GPAValue = &v
	}
	if e.CompletedAt != nil {
		v := *e.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища записей на курсы.
type Repository interface {
	// GetByID возвращает запись; shared.ErrNotFound, если её нет.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// Save создаёт или перезаписывает запись.
	Save(ctx context.Context, e *Enrollment) error

	// ListByStudent возвращает все записи студента.
	ListByStudent(ctx context.Context, studentID string) ([]*Enrollment, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CUMULATIVE GPA
// ══════════════════════════════════════════════════════════════════════════════

// LatestCompleted возвращает последнюю завершённую запись или nil.
func LatestCompleted(list []*Enrollment) *Enrollment {
	var latest *Enrollment
	for _, e := range list {
		if e == nil || e.Status != StatusCompleted || e.CompletedAt == nil {
			continue
		}
		if latest == nil || e.CompletedAt.After(*latest.CompletedAt) {
			latest = e
		}
	}
	return latest
}

// MinCountedGPA — минимальный GPA курса, чьи кредиты входят в знаменатель.
const MinCountedGPA = 1.0

// CumulativeGPA считает накопленный GPA по завершённым записям.
// Числитель — Σ(gpa × credits) по всем завершённым курсам, знаменатель —
// кредиты только тех курсов, где gpa ≥ 1.0. Возвращает nil, если
// знаменатель равен нулю; второе значение — сам знаменатель.
func CumulativeGPA(list []*Enrollment) (*float64, int) {
	var points float64
	credits := 0
	for _, e := range list {
		if e == nil || e.Status != StatusCompleted || e.GPAValue == nil {
			continue
		}
		points += *e.GPAValue * float64(e.Credits)
		if *e.GPAValue >= MinCountedGPA {
			credits += e.Credits
		}
	}
	if credits == 0 {
		return nil, 0
	}
	gpa := points / float64(credits)
	return &gpa, credits
}
