package gradetree

import (
	"context"
	"fmt"
	"sort"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// NodeRecord is the flat, persisted form of a Node.
type NodeRecord struct {
	ID           string
	EnrollmentID string
	ParentID     string // empty for roots
	Name         string
	Weight       float64
	RawScore     *float64
	Position     int // order among siblings
}

// Repository stores grade trees keyed by enrollment.
type Repository interface {
	// ListByEnrollment returns every node record of the enrollment's forest.
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]NodeRecord, error)

	// GetByID returns a single node record.
	GetByID(ctx context.Context, id string) (*NodeRecord, error)

	// Save inserts or updates a record.
	Save(ctx context.Context, rec NodeRecord) error

	// Delete removes the given records.
	Delete(ctx context.Context, ids []string) error
}

// Build assembles the forest described by records and returns its roots in
// position order. Records referencing an unknown parent are rejected.
func Build(records []NodeRecord) ([]*Node, error) {
	sorted := make([]NodeRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	nodes := make(map[string]*Node, len(sorted))
	for _, rec := range sorted {
		n := &Node{ID: rec.ID, Name: rec.Name}
		if err := n.SetWeight(rec.Weight); err != nil {
			return nil, err
		}
		if rec.RawScore != nil {
			if err := n.SetRawScore(*rec.RawScore); err != nil {
				return nil, err
			}
		}
		nodes[rec.ID] = n
	}

	var roots []*Node
	for _, rec := range sorted {
		n := nodes[rec.ID]
		if rec.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[rec.ParentID]
		if !ok {
			return nil, shared.NewValidationError(domainName, "Build",
				fmt.Sprintf("node %q references unknown parent %q", rec.ID, rec.ParentID))
		}
		if err := parent.AddChild(n); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

// Flatten converts a forest back into records, numbering siblings by position.
func Flatten(enrollmentID string, roots []*Node) []NodeRecord {
	var out []NodeRecord
	var visit func(n *Node, parentID string, pos int)
	visit = func(n *Node, parentID string, pos int) {
		rec := NodeRecord{
			ID:           n.ID,
			EnrollmentID: enrollmentID,
			ParentID:     parentID,
			Name:         n.Name,
			Weight:       n.weight,
			Position:     pos,
		}
		if score, ok := n.RawScore(); ok {
			rec.RawScore = &score
		}
		out = append(out, rec)
		for i, c := range n.children {
			visit(c, n.ID, i)
		}
	}
	for i, r := range roots {
		visit(r, "", i)
	}
	return out
}

// FindIn searches a forest for the node with the given ID.
func FindIn(roots []*Node, id string) *Node {
	for _, r := range roots {
		if n := r.Find(id); n != nil {
			return n
		}
	}
	return nil
}
