package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	query := `
		SELECT id, name, gpa, total_credits, standing, created_at, updated_at
		FROM students
		WHERE id = $1
	`

	var st student.Student
	var state string
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&st.ID, &st.Name, &st.GPA, &st.TotalCredits, &state, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "student", "GetByID", id)
	}
	st.Standing = standing.State(state)
	return &st, nil
}

// Save inserts or overwrites a student.
func (r *StudentRepository) Save(ctx context.Context, st *student.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO students (id, name, gpa, total_credits, standing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			gpa = EXCLUDED.gpa,
			total_credits = EXCLUDED.total_credits,
			standing = EXCLUDED.standing,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		st.ID, st.Name, st.GPA, st.TotalCredits, string(st.Standing), st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// UpdateGPA writes the cumulative GPA and counted credits.
func (r *StudentRepository) UpdateGPA(ctx context.Context, id string, gpa *float64, totalCredits int) error {
	query := `UPDATE students SET gpa = $1, total_credits = $2, updated_at = $3 WHERE id = $4`
	return r.update(ctx, "UpdateGPA", id, query, gpa, totalCredits, time.Now().UTC(), id)
}

// UpdateStanding writes the academic standing.
func (r *StudentRepository) UpdateStanding(ctx context.Context, id string, state standing.State) error {
	query := `UPDATE students SET standing = $1, updated_at = $2 WHERE id = $3`
	return r.update(ctx, "UpdateStanding", id, query, string(state), time.Now().UTC(), id)
}

func (r *StudentRepository) update(ctx context.Context, op, id, query string, args ...any) error {
	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("student", op, id)
	}
	return nil
}

var _ student.Repository = (*StudentRepository)(nil)
