// Package service holds infrastructure-side implementations of domain
// collaborators.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/infrastructure/metrics"
	"github.com/alem-hub/gradebook/pkg/logger"
	"github.com/google/uuid"
)

// IDGenerator produces identifiers for new records.
type IDGenerator interface {
	GenerateID() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// NewIDGenerator returns a UUID-backed generator.
func NewIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// GenerateID returns a new UUID string.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}

// AlertService implements alert.Requester: it stamps, persists and logs alerts.
// Delivery to students is handled outside this service.
type AlertService struct {
	repo    alert.Repository
	ids     IDGenerator
	now     func() time.Time
	metrics *metrics.Collector
	logger  *logger.Logger
}

// NewAlertService creates an AlertService.
func NewAlertService(repo alert.Repository, collector *metrics.Collector, log *logger.Logger) *AlertService {
	if log == nil {
		log = logger.NewNop()
	}
	return &AlertService{
		repo:    repo,
		ids:     NewIDGenerator(),
		now:     func() time.Time { return time.Now().UTC() },
		metrics: collector,
		logger:  log.With(logger.Component("alert_service")),
	}
}

// Request validates and stores an alert.
func (s *AlertService) Request(ctx context.Context, req alert.Request) (*alert.Alert, error) {
	if strings.TrimSpace(req.StudentID) == "" {
		return nil, shared.NewValidationError("alert", "Request", "student id is required")
	}
	if req.Level == "" || req.Type == "" {
		return nil, shared.NewValidationError("alert", "Request", "alert level and type are required")
	}

	a := &alert.Alert{
		ID:        s.ids.GenerateID(),
		StudentID: req.StudentID,
		Level:     req.Level,
		Type:      req.Type,
		Message:   req.Message,
		CreatedAt: s.now(),
	}

	if err := s.repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.metrics.RecordAlert(string(a.Level), string(a.Type))
	s.logger.Info("alert requested",
		logger.StudentID(a.StudentID),
		logger.String("alert_id", a.ID),
		logger.String("level", string(a.Level)),
		logger.String("type", string(a.Type)),
	)
	return a, nil
}

// ListByStudent returns the student's most recent alerts.
func (s *AlertService) ListByStudent(ctx context.Context, studentID string, limit int) ([]*alert.Alert, error) {
	return s.repo.ListByStudent(ctx, studentID, limit)
}
