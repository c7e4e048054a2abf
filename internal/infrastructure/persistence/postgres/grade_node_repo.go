package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/jackc/pgx/v5"
)

// GradeNodeRepository implements gradetree.Repository for PostgreSQL.
type GradeNodeRepository struct {
	conn *Connection
}

// NewGradeNodeRepository creates a new GradeNodeRepository.
func NewGradeNodeRepository(conn *Connection) *GradeNodeRepository {
	return &GradeNodeRepository{conn: conn}
}

const gradeNodeColumns = `id, enrollment_id, parent_id, name, weight, raw_score, position`

// ListByEnrollment returns every node of an enrollment's forest.
func (r *GradeNodeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]gradetree.NodeRecord, error) {
	query := `SELECT ` + gradeNodeColumns + ` FROM grade_nodes WHERE enrollment_id = $1 ORDER BY position, id`

	rows, err := r.conn.Query(ctx, query, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grade nodes: %w", err)
	}
	defer rows.Close()

	var out []gradetree.NodeRecord
	for rows.Next() {
		rec, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grade node: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetByID returns a single node.
func (r *GradeNodeRepository) GetByID(ctx context.Context, id string) (*gradetree.NodeRecord, error) {
	query := `SELECT ` + gradeNodeColumns + ` FROM grade_nodes WHERE id = $1`

	rec, err := scanNode(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "gradetree", "GetByID", id)
	}
	return rec, nil
}

// Save inserts or updates a node.
func (r *GradeNodeRepository) Save(ctx context.Context, rec gradetree.NodeRecord) error {
	query := `
		INSERT INTO grade_nodes (` + gradeNodeColumns + `)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			weight = EXCLUDED.weight,
			raw_score = EXCLUDED.raw_score,
			position = EXCLUDED.position
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID, rec.EnrollmentID, rec.ParentID, rec.Name, rec.Weight, rec.RawScore, rec.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to save grade node: %w", err)
	}
	return nil
}

// Delete removes the given nodes in one statement.
func (r *GradeNodeRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.conn.Exec(ctx, `DELETE FROM grade_nodes WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete grade nodes: %w", err)
	}
	return nil
}

func scanNode(row pgx.Row) (*gradetree.NodeRecord, error) {
	var rec gradetree.NodeRecord
	var parent *string
	if err := row.Scan(&rec.ID, &rec.EnrollmentID, &parent, &rec.Name, &rec.Weight, &rec.RawScore, &rec.Position); err != nil {
		return nil, err
	}
	if parent != nil {
		rec.ParentID = *parent
	}
	return &rec, nil
}

var _ gradetree.Repository = (*GradeNodeRepository)(nil)
