// Package command contains write operations (CQRS - Commands).
// Commands change the state of enrollments, grade trees and students.
package command

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/internal/infrastructure/metrics"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE ENROLLMENT COMMAND
// Records the final raw score of an enrollment, converts it through the
// enrollment's grading strategy and notifies the grade change handlers.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteEnrollmentCommand contains the data needed to complete an enrollment.
type CompleteEnrollmentCommand struct {
	EnrollmentID string

	// RawScore on the 10-point scale.
	RawScore float64
}

// Validate validates the command.
func (c CompleteEnrollmentCommand) Validate() error {
	if strings.TrimSpace(c.EnrollmentID) == "" {
		return shared.NewValidationError("enrollment", "CompleteEnrollment", "enrollment_id is required")
	}
	if math.IsNaN(c.RawScore) || c.RawScore < gradetree.MinScore || c.RawScore > gradetree.MaxScore {
		return shared.NewRangeError("enrollment", "CompleteEnrollment", "raw_score",
			c.RawScore, gradetree.MinScore, gradetree.MaxScore)
	}
	return nil
}

// CompleteEnrollmentResult contains the outcome of a completion.
type CompleteEnrollmentResult struct {
	Enrollment *enrollment.Enrollment
	Student    *student.Student
	Previous   student.Snapshot
	Alerts     []*alert.Alert
}

// StandingChanged reports whether the completion moved the student's standing.
func (r *CompleteEnrollmentResult) StandingChanged() bool {
	return r.Student.Standing != r.Previous.Standing
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Notifier fans a grade change out to handlers.
type Notifier interface {
	Notify(ctx context.Context, change *messaging.GradeChange) error
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADE EVALUATION SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// GradeEvaluationService is the entry point for finalizing grades.
// Writes to a student's GPA and standing are serialized by the Locker.
type GradeEvaluationService struct {
	enrollmentRepo enrollment.Repository
	studentRepo    student.Repository
	nodeRepo       gradetree.Repository
	notifier       Notifier
	locker         student.Locker
	cache          student.Cache
	metrics        *metrics.Collector
	logger         *logger.Logger
	now            func() time.Time
}

// NewGradeEvaluationService creates a GradeEvaluationService. cache and
// collector may be nil.
func NewGradeEvaluationService(
	enrollmentRepo enrollment.Repository,
	studentRepo student.Repository,
	nodeRepo gradetree.Repository,
	notifier Notifier,
	locker student.Locker,
	cache student.Cache,
	collector *metrics.Collector,
	log *logger.Logger,
) *GradeEvaluationService {
	if log == nil {
		log = logger.NewNop()
	}
	return &GradeEvaluationService{
		enrollmentRepo: enrollmentRepo,
		studentRepo:    studentRepo,
		nodeRepo:       nodeRepo,
		notifier:       notifier,
		locker:         locker,
		cache:          cache,
		metrics:        collector,
		logger:         log.With(logger.Component("grade_evaluation")),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the command.
func (s *GradeEvaluationService) Handle(ctx context.Context, cmd CompleteEnrollmentCommand) (*CompleteEnrollmentResult, error) {
	return s.CompleteEnrollment(ctx, cmd.EnrollmentID, cmd.RawScore)
}

// CompleteEnrollment completes an enrollment with a raw 10-point score.
func (s *GradeEvaluationService) CompleteEnrollment(ctx context.Context, enrollmentID string, rawScore float64) (*CompleteEnrollmentResult, error) {
	cmd := CompleteEnrollmentCommand{EnrollmentID: enrollmentID, RawScore: rawScore}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := e.CanComplete(); err != nil {
		return nil, err
	}

	return s.complete(ctx, e, rawScore, nil)
}

// FinalizeFromTree completes an enrollment using the calculated score of its
// persisted grade tree. Root weights must sum to 1.0.
func (s *GradeEvaluationService) FinalizeFromTree(ctx context.Context, enrollmentID string) (*CompleteEnrollmentResult, error) {
	e, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := e.CanComplete(); err != nil {
		return nil, err
	}

	records, err := s.nodeRepo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grade tree: %w", err)
	}
	roots, err := gradetree.Build(records)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, shared.NewValidationError("enrollment", "FinalizeFromTree",
			fmt.Sprintf("enrollment %s has no grade nodes", enrollmentID))
	}
	if !gradetree.RootWeightsSumToOne(roots) {
		return nil, shared.NewValidationError("enrollment", "FinalizeFromTree",
			"root grade node weights must sum to 1.0")
	}

	course, err := gradetree.NewComposite(e.CourseCode, 1.0)
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		if err := course.AddChild(r); err != nil {
			return nil, err
		}
	}

	score, ok := course.CalculatedScore()
	if !ok {
		return nil, shared.NewValidationError("enrollment", "FinalizeFromTree",
			"grade tree has no scored nodes")
	}

	// Float accumulation can land just under a breakpoint (8.9999...).
	score = math.Round(score*100) / 100

	return s.complete(ctx, e, score, course)
}

func (s *GradeEvaluationService) complete(ctx context.Context, e *enrollment.Enrollment, rawScore float64, node *gradetree.Node) (*CompleteEnrollmentResult, error) {
	start := s.now()

	// 1. Resolve strategy and convert the score
	strategy, err := grading.GetStrategy(string(e.GradingScale))
	if err != nil {
		return nil, err
	}
	gpa := strategy.GPA(rawScore)
	letter := strategy.LetterGrade(rawScore)

	// 2. Serialize on the student
	lockStart := time.Now()
	unlock, err := s.locker.Lock(ctx, e.StudentID)
	s.metrics.RecordLockWait(time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			s.logger.Warn("failed to release student lock", logger.StudentID(e.StudentID), logger.Err(uerr))
		}
	}()

	// 3. Reload under the lock; a concurrent request may have closed it
	current, err := s.enrollmentRepo.GetByID(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if err := current.Complete(rawScore, gpa, letter, s.now()); err != nil {
		return nil, err
	}
	if err := s.enrollmentRepo.Save(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}

	// Handlers may have written part of the student before failing.
	defer s.invalidate(ctx, current.StudentID)

	// 4. Notify handlers with the shared student record
	st, err := s.studentRepo.GetByID(ctx, current.StudentID)
	if err != nil {
		return nil, err
	}
	change := messaging.NewGradeChange(st, current, s.now())
	change.Node = node

	if err := s.notifier.Notify(ctx, change); err != nil {
		s.logger.Error("grade change handlers failed",
			logger.EnrollmentID(current.ID),
			logger.StudentID(st.ID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("failed to notify grade change: %w", err)
	}

	s.metrics.RecordCompletion(string(current.GradingScale), letter, s.now().Sub(start))
	s.logger.Info("enrollment completed",
		logger.EnrollmentID(current.ID),
		logger.StudentID(st.ID),
		logger.Scale(string(current.GradingScale)),
		logger.Float64("raw_score", rawScore),
		logger.Float64("gpa_value", gpa),
		logger.String("letter", letter),
		logger.OptionalFloat64("cumulative_gpa", st.GPA),
		logger.StandingState(st.Standing.String()),
	)

	return &CompleteEnrollmentResult{
		Enrollment: current,
		Student:    st,
		Previous:   change.Previous,
		Alerts:     change.Alerts(),
	}, nil
}

// Recalculate re-runs the grade change handlers for a student against their
// most recently completed enrollment. It recovers a completion whose handlers
// failed after the enrollment was saved.
func (s *GradeEvaluationService) Recalculate(ctx context.Context, studentID string) (*CompleteEnrollmentResult, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, shared.NewValidationError("enrollment", "Recalculate", "student_id is required")
	}

	lockStart := time.Now()
	unlock, err := s.locker.Lock(ctx, studentID)
	s.metrics.RecordLockWait(time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			s.logger.Warn("failed to release student lock", logger.StudentID(studentID), logger.Err(uerr))
		}
	}()

	st, err := s.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	list, err := s.enrollmentRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	latest := enrollment.LatestCompleted(list)
	if latest == nil {
		return nil, shared.NewStateConflictError("enrollment", "Recalculate",
			fmt.Sprintf("student %s has no completed enrollments", studentID))
	}

	defer s.invalidate(ctx, studentID)

	change := messaging.NewGradeChange(st, latest, s.now())
	if err := s.notifier.Notify(ctx, change); err != nil {
		s.logger.Error("grade change handlers failed on recalculation",
			logger.StudentID(st.ID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("failed to notify grade change: %w", err)
	}

	s.logger.Info("student recalculated",
		logger.StudentID(st.ID),
		logger.EnrollmentID(latest.ID),
		logger.OptionalFloat64("cumulative_gpa", st.GPA),
		logger.StandingState(st.Standing.String()),
	)

	return &CompleteEnrollmentResult{
		Enrollment: latest,
		Student:    st,
		Previous:   change.Previous,
		Alerts:     change.Alerts(),
	}, nil
}

func (s *GradeEvaluationService) invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, studentID); err != nil {
		s.logger.Warn("failed to invalidate standing cache", logger.StudentID(studentID), logger.Err(err))
	}
}
