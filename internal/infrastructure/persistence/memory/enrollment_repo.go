package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// EnrollmentRepository implements enrollment.Repository using a map.
type EnrollmentRepository struct {
	mu          sync.RWMutex
	enrollments map[string]*enrollment.Enrollment
}

// NewEnrollmentRepository creates an empty repository.
func NewEnrollmentRepository() *EnrollmentRepository {
	return &EnrollmentRepository{enrollments: make(map[string]*enrollment.Enrollment)}
}

// GetByID returns a copy of the enrollment.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.enrollments[id]
	if !ok {
		return nil, shared.NewNotFoundError("enrollment", "GetByID", id)
	}
	return e.Clone(), nil
}

// Save stores a copy of the enrollment.
func (r *EnrollmentRepository) Save(ctx context.Context, e *enrollment.Enrollment) error {
	if err := e.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.enrollments[e.ID] = e.Clone()
	return nil
}

// ListByStudent returns the student's enrollments ordered by ID.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*enrollment.Enrollment
	for _, e := range r.enrollments {
		if e.StudentID == studentID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
