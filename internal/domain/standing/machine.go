// Package standing содержит конечный автомат академического статуса студента.
// Статус вычисляется чистой функцией от (текущий статус, новый GPA);
// сохранение результата — ответственность вызывающего кода.
package standing

import (
	"fmt"
	"strings"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATES
// ══════════════════════════════════════════════════════════════════════════════

// State — академический статус студента.
type State string

const (
	Normal    State = "NORMAL"
	AtRisk    State = "AT_RISK"
	Probation State = "PROBATION"
	Graduated State = "GRADUATED"
)

// Пороги GPA для переходов.
const (
	NormalThreshold = 2.0
	AtRiskThreshold = 1.5
)

// All возвращает все статусы.
func All() []State {
	return []State{Normal, AtRisk, Probation, Graduated}
}

// Parse разбирает строковое представление статуса (без учёта регистра).
func Parse(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", shared.NewValidationError("standing", "Parse", fmt.Sprintf("unknown standing %q", s))
	}
	return st, nil
}

// IsValid проверяет, что статус известен.
func (s State) IsValid() bool {
	switch s {
	case Normal, AtRisk, Probation, Graduated:
		return true
	}
	return false
}

// IsTerminal — из GRADUATED переходов нет.
func (s State) IsTerminal() bool {
	return s == Graduated
}

// Severity упорядочивает нетерминальные статусы: чем больше, тем хуже.
// Для GRADUATED возвращает -1.
func (s State) Severity() int {
	switch s {
	case Normal:
		return 0
	case AtRisk:
		return 1
	case Probation:
		return 2
	}
	return -1
}

// String возвращает строковое представление.
func (s State) String() string {
	return string(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Next вычисляет статус после пересчёта GPA.
//
//	gpa >= 2.0        → NORMAL
//	1.5 <= gpa < 2.0  → AT_RISK
//	gpa < 1.5         → PROBATION
//	gpa == nil        → NORMAL (нет завершённых курсов)
//
// GRADUATED не меняется никогда.
func Next(current State, gpa *float64) State {
	if current == Graduated {
		return Graduated
	}
	if gpa == nil {
		return Normal
	}
	switch {
	case *gpa >= NormalThreshold:
		return Normal
	case *gpa >= AtRiskThreshold:
		return AtRisk
	default:
		return Probation
	}
}

// Graduate переводит студента в GRADUATED.
// Допустимо из NORMAL и AT_RISK; с испытательного срока выпуск запрещён.
func Graduate(current State) (State, error) {
	switch current {
	case Normal, AtRisk:
		return Graduated, nil
	case Graduated:
		return current, shared.NewDomainError("standing", "Graduate", shared.ErrStateTransition,
			"student has already graduated")
	case Probation:
		return current, shared.NewDomainError("standing", "Graduate", shared.ErrStateTransition,
			"student on probation cannot graduate")
	}
	return current, shared.NewValidationError("standing", "Graduate", fmt.Sprintf("unknown standing %q", current))
}
