package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/gradebook/internal/application/command"
	"github.com/alem-hub/gradebook/internal/application/query"
	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/grading"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/domain/standing"
	"github.com/alem-hub/gradebook/internal/domain/student"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type completeRequest struct {
	RawScore *float64 `json:"raw_score" validate:"required"`
}

type registerStudentRequest struct {
	ID   string `json:"id" validate:"omitempty,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type enrollRequest struct {
	CourseCode   string `json:"course_code" validate:"required,max=32"`
	Credits      int    `json:"credits" validate:"required,min=1,max=30"`
	GradingScale string `json:"grading_scale" validate:"required"`
}

type recordNodeRequest struct {
	Name     string   `json:"name" validate:"required,max=200"`
	Weight   *float64 `json:"weight" validate:"required"`
	RawScore *float64 `json:"raw_score"`
	ParentID string   `json:"parent_id" validate:"omitempty,max=64"`
}

type updateNodeRequest struct {
	Weight     *float64 `json:"weight"`
	RawScore   *float64 `json:"raw_score"`
	ClearScore bool     `json:"clear_score"`
}

type previewRequest struct {
	Scale   string    `json:"scale" validate:"required"`
	Scores  []float64 `json:"scores" validate:"required"`
	Weights []float64 `json:"weights" validate:"required"`
}

// decodeBody decodes and validates a JSON body. It writes the error response
// itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "Malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return false
		}
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_json", msg, err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return false
		}
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation_error", "Request validation failed", details)
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case shared.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		status, code = http.StatusConflict, "already_exists"
	case shared.IsStateConflict(err):
		status, code = http.StatusConflict, "state_conflict"
	case shared.IsRange(err):
		status, code = http.StatusBadRequest, "out_of_range"
	case shared.IsUnknownScale(err):
		status, code = http.StatusBadRequest, "unknown_scale"
	case shared.IsValidation(err):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, shared.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrLockTimeout),
		errors.Is(err, shared.ErrServiceUnavailable),
		errors.Is(err, shared.ErrTimeout):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
		w.Header().Set("Retry-After", "1")
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, status, code, "An unexpected error occurred")
		return
	}

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}
	writeJSONError(w, r, status, code, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"healthy": true,
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRegisterStudent handles POST /api/v1/students
func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	st, err := s.deps.Students.Register(r.Context(), command.RegisterStudentCommand{
		StudentID: req.ID,
		Name:      req.Name,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, st)
}

// handleEnroll handles POST /api/v1/students/{id}/enrollments
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeBody(w, r, &req) {
		return
	}

	e, err := s.deps.Students.Enroll(r.Context(), command.CreateEnrollmentCommand{
		StudentID:    r.PathValue("id"),
		CourseCode:   req.CourseCode,
		Credits:      req.Credits,
		GradingScale: req.GradingScale,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// handleGetStanding handles GET /api/v1/students/{id}/standing
func (s *Server) handleGetStanding(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetStanding.Handle(r.Context(), query.GetStandingQuery{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListAlerts handles GET /api/v1/students/{id}/alerts?limit=N
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := query.ListAlertsQuery{StudentID: r.PathValue("id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		q.Limit = limit
	}

	dto, err := s.deps.ListAlerts.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{TotalCount: dto.Count})
}

// handleGraduate handles POST /api/v1/students/{id}/graduate
func (s *Server) handleGraduate(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Students.Graduate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// CompletionResponse is returned by the complete and finalize endpoints.
type CompletionResponse struct {
	Enrollment       *enrollment.Enrollment `json:"enrollment"`
	Student          *student.Student       `json:"student"`
	PreviousGPA      *float64               `json:"previous_gpa"`
	PreviousStanding standing.State         `json:"previous_standing"`
	StandingChanged  bool                   `json:"standing_changed"`
	Alerts           []*alert.Alert         `json:"alerts"`
}

func toCompletionResponse(res *command.CompleteEnrollmentResult) CompletionResponse {
	alerts := res.Alerts
	if alerts == nil {
		alerts = []*alert.Alert{}
	}
	return CompletionResponse{
		Enrollment:       res.Enrollment,
		Student:          res.Student,
		PreviousGPA:      res.Previous.GPA,
		PreviousStanding: res.Previous.Standing,
		StandingChanged:  res.StandingChanged(),
		Alerts:           alerts,
	}
}

// handleCompleteEnrollment handles POST /api/v1/enrollments/{id}/complete
func (s *Server) handleCompleteEnrollment(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.Evaluation.CompleteEnrollment(r.Context(), r.PathValue("id"), *req.RawScore)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCompletionResponse(res))
}

// handleFinalizeEnrollment handles POST /api/v1/enrollments/{id}/finalize
func (s *Server) handleFinalizeEnrollment(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Evaluation.FinalizeFromTree(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCompletionResponse(res))
}

// handleRecalculate handles POST /api/v1/students/{id}/recalculate
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Evaluation.Recalculate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCompletionResponse(res))
}

// handleWithdrawEnrollment handles POST /api/v1/enrollments/{id}/withdraw
func (s *Server) handleWithdrawEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Students.Withdraw(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// handleGetGradeTree handles GET /api/v1/enrollments/{id}/grade-tree
func (s *Server) handleGetGradeTree(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetGradeTree.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADE NODE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// GradeNodeResponse is a persisted grade node.
type GradeNodeResponse struct {
	ID           string   `json:"id"`
	EnrollmentID string   `json:"enrollment_id"`
	ParentID     string   `json:"parent_id,omitempty"`
	Name         string   `json:"name"`
	Weight       float64  `json:"weight"`
	RawScore     *float64 `json:"raw_score"`
	Position     int      `json:"position"`
}

func toNodeResponse(rec *gradetree.NodeRecord) GradeNodeResponse {
	return GradeNodeResponse{
		ID:           rec.ID,
		EnrollmentID: rec.EnrollmentID,
		ParentID:     rec.ParentID,
		Name:         rec.Name,
		Weight:       rec.Weight,
		RawScore:     rec.RawScore,
		Position:     rec.Position,
	}
}

// handleRecordGradeNode handles POST /api/v1/enrollments/{id}/grade-nodes
func (s *Server) handleRecordGradeNode(w http.ResponseWriter, r *http.Request) {
	var req recordNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.deps.GradeNodes.Record(r.Context(), command.RecordGradeNodeCommand{
		EnrollmentID: r.PathValue("id"),
		ParentID:     req.ParentID,
		Name:         req.Name,
		Weight:       *req.Weight,
		RawScore:     req.RawScore,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toNodeResponse(rec))
}

// handleUpdateGradeNode handles PATCH /api/v1/grade-nodes/{id}
func (s *Server) handleUpdateGradeNode(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.deps.GradeNodes.Update(r.Context(), command.UpdateGradeNodeCommand{
		NodeID:     r.PathValue("id"),
		Weight:     req.Weight,
		RawScore:   req.RawScore,
		ClearScore: req.ClearScore,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toNodeResponse(rec))
}

// handleDeleteGradeNode handles DELETE /api/v1/grade-nodes/{id}
func (s *Server) handleDeleteGradeNode(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.GradeNodes.Delete(r.Context(), command.DeleteGradeNodeCommand{NodeID: r.PathValue("id")})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"deleted": ids})
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// ScaleInfo describes one grading strategy.
type ScaleInfo struct {
	Scale        grading.Scale `json:"scale"`
	Name         string        `json:"name"`
	MaxGrade     float64       `json:"max_grade"`
	PassingGrade float64       `json:"passing_grade"`
}

// handleListScales handles GET /api/v1/grading/scales
func (s *Server) handleListScales(w http.ResponseWriter, r *http.Request) {
	scales := grading.Scales()
	out := make([]ScaleInfo, 0, len(scales))
	for _, sc := range scales {
		st := grading.For(sc)
		out = append(out, ScaleInfo{
			Scale:        st.Scale(),
			Name:         st.Name(),
			MaxGrade:     st.MaxGrade(),
			PassingGrade: st.PassingGrade(),
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handlePreviewGrade handles POST /api/v1/grading/preview
func (s *Server) handlePreviewGrade(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	dto, err := s.deps.PreviewGrade.Handle(query.PreviewGradeQuery{
		GradingScale: req.Scale,
		Scores:       req.Scores,
		Weights:      req.Weights,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}
