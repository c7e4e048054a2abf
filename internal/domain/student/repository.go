package student

import (
	"context"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/standing"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища студентов.
type Repository interface {
	// GetByID возвращает студента по ID.
	// Возвращает ошибку вида shared.ErrNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (*Student, error)

	// Save создаёт или полностью перезаписывает запись.
	Save(ctx context.Context, st *Student) error

	// UpdateGPA записывает GPA и число кредитов.
	UpdateGPA(ctx context.Context, id string, gpa *float64, totalCredits int) error

	// UpdateStanding записывает академический статус.
	UpdateStanding(ctx context.Context, id string, state standing.State) error
}

// Cache — кеш представления статуса студента.
type Cache interface {
	// Get возвращает закешированного студента или ошибку промаха.
	Get(ctx context.Context, id string) (*Student, error)

	// Set кладёт студента в кеш.
	Set(ctx context.Context, st *Student, ttl time.Duration) error

	// Invalidate удаляет запись из кеша.
	Invalidate(ctx context.Context, id string) error
}

// Locker сериализует запись GPA/статуса одного студента:
// в каждый момент выполняется не более одного пересчёта на студента.
type Locker interface {
	// Lock блокирует студента и возвращает функцию освобождения.
	Lock(ctx context.Context, studentID string) (unlock func(context.Context) error, err error)
}
