package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/alert"
)

// AlertRepository implements alert.Repository for PostgreSQL.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

// Save inserts an alert.
func (r *AlertRepository) Save(ctx context.Context, a *alert.Alert) error {
	query := `
		INSERT INTO alerts (id, student_id, level, type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.conn.Exec(ctx, query, a.ID, a.StudentID, string(a.Level), string(a.Type), a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListByStudent returns the newest alerts first. limit <= 0 returns all.
func (r *AlertRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*alert.Alert, error) {
	query := `
		SELECT id, student_id, level, type, message, created_at
		FROM alerts
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{studentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		var a alert.Alert
		var level, typ string
		if err := rows.Scan(&a.ID, &a.StudentID, &level, &typ, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Level = alert.Level(level)
		a.Type = alert.Type(typ)
		out = append(out, &a)
	}
	return out, rows.Err()
}

var _ alert.Repository = (*AlertRepository)(nil)
