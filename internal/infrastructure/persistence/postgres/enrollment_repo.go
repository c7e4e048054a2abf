package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/jackc/pgx/v5"
)

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `
	id, student_id, course_code, credits, grading_scale, status,
	final_score, letter_grade, gpa_value, completed_at
`

// GetByID returns an enrollment by ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`

	e, err := scanEnrollment(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "enrollment", "GetByID", id)
	}
	return e, nil
}

// Save inserts or overwrites an enrollment.
func (r *EnrollmentRepository) Save(ctx context.Context, e *enrollment.Enrollment) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			final_score = EXCLUDED.final_score,
			letter_grade = EXCLUDED.letter_grade,
			gpa_value = EXCLUDED.gpa_value,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.conn.Exec(ctx, query,
		e.ID, e.StudentID, e.CourseCode, e.Credits, string(e.GradingScale), string(e.Status),
		e.FinalScore, e.LetterGrade, e.GPAValue, e.CompletedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NewNotFoundError("student", "SaveEnrollment", e.StudentID)
		}
		return fmt.Errorf("failed to save enrollment: %w", err)
	}
	return nil
}

// ListByStudent returns a student's enrollments ordered by ID.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 ORDER BY id`

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var out []*enrollment.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	var scale, status string
	var letter *string

	err := row.Scan(
		&e.ID, &e.StudentID, &e.CourseCode, &e.Credits, &scale, &status,
		&e.FinalScore, &letter, &e.GPAValue, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	e.GradingScale = grading.Scale(scale)
	e.Status = enrollment.Status(status)
	if letter != nil {
		e.LetterGrade = *letter
	}
	return &e, nil
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)
