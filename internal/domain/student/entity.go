package student

import (
	"strings"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Student — запись студента, на которую опирается пересчёт успеваемости.
type Student struct {
	// ID — внутренний идентификатор.
	ID string `json:"id"`

	// Name — отображаемое имя.
	Name string `json:"name"`

	// GPA — накопленный средний балл; nil, если завершённых курсов нет.
	GPA *float64 `json:"gpa"`

	// TotalCredits — кредиты, учтённые в знаменателе GPA.
	TotalCredits int `json:"total_credits"`

	// Standing — академический статус. Меняется только автоматом standing.
	Standing standing.State `json:"standing"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStudent создаёт студента в статусе NORMAL без GPA.
func NewStudent(id, name string) *Student {
	now := time.Now().UTC()
	return &Student{
		ID:        id,
		Name:      name,
		Standing:  standing.Normal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate проверяет инварианты записи.
func (s *Student) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return shared.NewDomainError("student", "Validate", shared.ErrEmptyValue, "student id is required")
	}
	if !s.Standing.IsValid() {
		return shared.NewValidationError("student", "Validate", "unknown standing "+s.Standing.String())
	}
	if s.TotalCredits < 0 {
		return shared.NewValidationError("student", "Validate", "total credits cannot be negative")
	}
	return nil
}

// ApplyGPA записывает новый GPA и число кредитов.
func (s *Student) ApplyGPA(gpa *float64, totalCredits int) {
	if gpa != nil {
		v := *gpa
		gpa = &v
	}
	s.GPA = gpa
	s.TotalCredits = totalCredits
	s.UpdatedAt = time.Now().UTC()
}

// ApplyStanding записывает статус. Возвращает true, если статус изменился.
func (s *Student) ApplyStanding(next standing.State) bool {
	if s.Standing == next {
		return false
	}
	s.Standing = next
	s.UpdatedAt = time.Now().UTC()
	return true
}

// Snapshot — копия GPA и статуса до изменения.
type Snapshot struct {
	GPA      *float64
	Standing standing.State
}

// Snapshot возвращает копию текущих показателей.
func (s *Student) Snapshot() Snapshot {
	snap := Snapshot{Standing: s.Standing}
	if s.GPA != nil {
		v := *s.GPA
		snap.GPA = &v
	}
	return snap
}

// Clone возвращает независимую копию записи.
func (s *Student) Clone() *Student {
	c := *s
	if s.GPA != nil {
		v := *s.GPA
		c.GPA = &v
	}
	return &c
}
