// Package memory provides in-process implementations of the repository
// ports. They back the memory storage mode and the end-to-end tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
)

// StudentRepository implements student.Repository using a map.
// Stored values are cloned on the way in and out.
type StudentRepository struct {
	mu       sync.RWMutex
	students map[string]*student.Student
}

// NewStudentRepository creates an empty repository.
func NewStudentRepository() *StudentRepository {
	return &StudentRepository{students: make(map[string]*student.Student)}
}

// GetByID returns a copy of the student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.students[id]
	if !ok {
		return nil, shared.NewNotFoundError("student", "GetByID", id)
	}
	return st.Clone(), nil
}

// Save stores a copy of the student.
func (r *StudentRepository) Save(ctx context.Context, st *student.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.students[st.ID] = st.Clone()
	return nil
}

// UpdateGPA sets GPA and total credits.
func (r *StudentRepository) UpdateGPA(ctx context.Context, id string, gpa *float64, totalCredits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.students[id]
	if !ok {
		return shared.NewNotFoundError("student", "UpdateGPA", id)
	}
	st.ApplyGPA(gpa, totalCredits)
	return nil
}

// UpdateStanding sets the standing.
func (r *StudentRepository) UpdateStanding(ctx context.Context, id string, state standing.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.students[id]
	if !ok {
		return shared.NewNotFoundError("student", "UpdateStanding", id)
	}
	st.Standing = state
	st.UpdatedAt = time.Now().UTC()
	return nil
}
