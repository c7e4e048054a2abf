package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/gradebook/internal/domain/alert"
)

// AlertRepository implements alert.Repository using a slice per student.
type AlertRepository struct {
	mu     sync.RWMutex
	alerts map[string][]*alert.Alert
}

// NewAlertRepository creates an empty repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{alerts: make(map[string][]*alert.Alert)}
}

// Save appends an alert.
func (r *AlertRepository) Save(ctx context.Context, a *alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *a
	r.alerts[a.StudentID] = append(r.alerts[a.StudentID], &c)
	return nil
}

// ListByStudent returns the newest alerts first. limit <= 0 returns all.
func (r *AlertRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*alert.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.alerts[studentID]
	n := len(stored)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*alert.Alert, 0, n)
	for i := len(stored) - 1; i >= 0 && len(out) < n; i-- {
		c := *stored[i]
		out = append(out, &c)
	}
	return out, nil
}
