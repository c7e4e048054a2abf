package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/pkg/logger"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT AND ENROLLMENT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterStudentCommand creates a student record.
type RegisterStudentCommand struct {
	// StudentID is optional; a UUID is generated when empty.
	StudentID string
	Name      string
}

// CreateEnrollmentCommand enrolls a student in a course.
type CreateEnrollmentCommand struct {
	StudentID    string
	CourseCode   string
	Credits      int
	GradingScale string
}

// Validate validates the command.
func (c CreateEnrollmentCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" || strings.TrimSpace(c.CourseCode) == "" {
		return shared.NewValidationError("enrollment", "CreateEnrollment", "student_id and course_code are required")
	}
	if c.Credits <= 0 {
		return shared.NewValidationError("enrollment", "CreateEnrollment", fmt.Sprintf("credits must be positive, got %d", c.Credits))
	}
	return nil
}

// StudentHandler handles registration, enrollment lifecycle and graduation.
type StudentHandler struct {
	studentRepo    student.Repository
	enrollmentRepo enrollment.Repository
	locker         student.Locker
	cache          student.Cache
	logger         *logger.Logger
}

// NewStudentHandler creates a StudentHandler. cache may be nil.
func NewStudentHandler(
	studentRepo student.Repository,
	enrollmentRepo enrollment.Repository,
	locker student.Locker,
	cache student.Cache,
	log *logger.Logger,
) *StudentHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &StudentHandler{
		studentRepo:    studentRepo,
		enrollmentRepo: enrollmentRepo,
		locker:         locker,
		cache:          cache,
		logger:         log.With(logger.Component("students")),
	}
}

// Register creates a student in NORMAL standing without a GPA.
func (h *StudentHandler) Register(ctx context.Context, cmd RegisterStudentCommand) (*student.Student, error) {
	id := strings.TrimSpace(cmd.StudentID)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, shared.NewValidationError("student", "Register", "name is required")
	}

	if _, err := h.studentRepo.GetByID(ctx, id); err == nil {
		return nil, shared.NewDomainError("student", "Register", shared.ErrAlreadyExists,
			fmt.Sprintf("student %s already exists", id))
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	st := student.NewStudent(id, strings.TrimSpace(cmd.Name))
	if err := h.studentRepo.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to save student: %w", err)
	}

	h.logger.Info("student registered", logger.StudentID(st.ID))
	return st, nil
}

// Enroll creates an ACTIVE enrollment.
func (h *StudentHandler) Enroll(ctx context.Context, cmd CreateEnrollmentCommand) (*enrollment.Enrollment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	scale, err := grading.ParseScale(cmd.GradingScale)
	if err != nil {
		return nil, err
	}

	st, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}
	if !st.Standing.CanRegister() {
		return nil, shared.NewStateConflictError("enrollment", "CreateEnrollment",
			fmt.Sprintf("student %s in %s standing cannot register for courses", st.ID, st.Standing))
	}

	existing, err := h.enrollmentRepo.ListByStudent(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	load := cmd.Credits
	for _, other := range existing {
		if other.Status == enrollment.StatusActive {
			load += other.Credits
		}
	}
	if limit := st.Standing.MaxCreditHours(); load > limit {
		return nil, shared.NewStateConflictError("enrollment", "CreateEnrollment",
			fmt.Sprintf("active load of %d credits exceeds the %d credit limit for %s standing", load, limit, st.Standing))
	}

	e := &enrollment.Enrollment{
		ID:           uuid.NewString(),
		StudentID:    st.ID,
		CourseCode:   strings.TrimSpace(cmd.CourseCode),
		Credits:      cmd.Credits,
		GradingScale: scale,
		Status:       enrollment.StatusActive,
	}
	if err := h.enrollmentRepo.Save(ctx, e); err != nil {
		return nil, err
	}

	h.logger.Info("student enrolled",
		logger.StudentID(st.ID),
		logger.EnrollmentID(e.ID),
		logger.Scale(scale.String()),
	)
	return e, nil
}

// Withdraw withdraws an ACTIVE enrollment. Withdrawn courses never count
// towards the GPA.
func (h *StudentHandler) Withdraw(ctx context.Context, enrollmentID string) (*enrollment.Enrollment, error) {
	e, err := h.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	unlock, err := h.locker.Lock(ctx, e.StudentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock(context.WithoutCancel(ctx)) }()

	e, err = h.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := e.Withdraw(); err != nil {
		return nil, err
	}
	if err := h.enrollmentRepo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}

	h.logger.Info("enrollment withdrawn", logger.EnrollmentID(e.ID), logger.StudentID(e.StudentID))
	return e, nil
}

// Graduate moves a student to GRADUATED. Only NORMAL and AT_RISK students
// can graduate.
func (h *StudentHandler) Graduate(ctx context.Context, studentID string) (*student.Student, error) {
	unlock, err := h.locker.Lock(ctx, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock(context.WithoutCancel(ctx)) }()

	st, err := h.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	next, err := standing.Graduate(st.Standing)
	if err != nil {
		return nil, err
	}
	if err := h.studentRepo.UpdateStanding(ctx, st.ID, next); err != nil {
		return nil, fmt.Errorf("failed to update standing: %w", err)
	}
	st.ApplyStanding(next)

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, st.ID); err != nil {
			h.logger.Warn("failed to invalidate standing cache", logger.StudentID(st.ID), logger.Err(err))
		}
	}

	h.logger.Info("student graduated", logger.StudentID(st.ID))
	return st, nil
}
