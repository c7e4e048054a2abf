package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// GradeNodeRepository implements gradetree.Repository using a map.
type GradeNodeRepository struct {
	mu    sync.RWMutex
	nodes map[string]gradetree.NodeRecord
}

// NewGradeNodeRepository creates an empty repository.
func NewGradeNodeRepository() *GradeNodeRepository {
	return &GradeNodeRepository{nodes: make(map[string]gradetree.NodeRecord)}
}

func cloneRecord(rec gradetree.NodeRecord) gradetree.NodeRecord {
	if rec.RawScore != nil {
		v := *rec.RawScore
		rec.RawScore = &v
	}
	return rec
}

// ListByEnrollment returns the enrollment's records ordered by parent and position.
func (r *GradeNodeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]gradetree.NodeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []gradetree.NodeRecord
	for _, rec := range r.nodes {
		if rec.EnrollmentID == enrollmentID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetByID returns a single record.
func (r *GradeNodeRepository) GetByID(ctx context.Context, id string) (*gradetree.NodeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.nodes[id]
	if !ok {
		return nil, shared.NewNotFoundError("gradetree", "GetByID", id)
	}
	c := cloneRecord(rec)
	return &c, nil
}

// Save inserts or replaces a record.
func (r *GradeNodeRepository) Save(ctx context.Context, rec gradetree.NodeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[rec.ID] = cloneRecord(rec)
	return nil
}

// Delete removes records; unknown IDs are ignored.
func (r *GradeNodeRepository) Delete(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.nodes, id)
	}
	return nil
}
