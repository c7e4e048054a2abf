package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE NODE COMMANDS
// Maintain the grade tree of an active enrollment. Closed enrollments are
// read-only.
// ══════════════════════════════════════════════════════════════════════════════

// RecordGradeNodeCommand creates a node under an enrollment.
type RecordGradeNodeCommand struct {
	EnrollmentID string

	// ParentID is empty for a root node.
	ParentID string
	Name     string
	Weight   float64

	// RawScore is set for leaves and nil for composites.
	RawScore *float64
}

// Validate validates the command.
func (c RecordGradeNodeCommand) Validate() error {
	if strings.TrimSpace(c.EnrollmentID) == "" {
		return shared.NewValidationError("gradetree", "RecordGradeNode", "enrollment_id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewValidationError("gradetree", "RecordGradeNode", "name is required")
	}
	return nil
}

// UpdateGradeNodeCommand changes the weight and/or score of a node.
type UpdateGradeNodeCommand struct {
	NodeID   string
	Weight   *float64
	RawScore *float64

	// ClearScore removes the raw score; ignored when RawScore is set.
	ClearScore bool
}

// Validate validates the command.
func (c UpdateGradeNodeCommand) Validate() error {
	if strings.TrimSpace(c.NodeID) == "" {
		return shared.NewValidationError("gradetree", "UpdateGradeNode", "node_id is required")
	}
	if c.Weight == nil && c.RawScore == nil && !c.ClearScore {
		return shared.NewValidationError("gradetree", "UpdateGradeNode", "nothing to update")
	}
	return nil
}

// DeleteGradeNodeCommand removes a node and its subtree.
type DeleteGradeNodeCommand struct {
	NodeID string
}

// GradeNodeHandler handles the grade node commands.
type GradeNodeHandler struct {
	enrollmentRepo enrollment.Repository
	nodeRepo       gradetree.Repository
	logger         *logger.Logger
}

// NewGradeNodeHandler creates a GradeNodeHandler.
func NewGradeNodeHandler(enrollmentRepo enrollment.Repository, nodeRepo gradetree.Repository, log *logger.Logger) *GradeNodeHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &GradeNodeHandler{
		enrollmentRepo: enrollmentRepo,
		nodeRepo:       nodeRepo,
		logger:         log.With(logger.Component("grade_nodes")),
	}
}

// Record creates a leaf or composite node.
func (h *GradeNodeHandler) Record(ctx context.Context, cmd RecordGradeNodeCommand) (*gradetree.NodeRecord, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.activeEnrollment(ctx, cmd.EnrollmentID, "RecordGradeNode"); err != nil {
		return nil, err
	}

	var node *gradetree.Node
	var err error
	if cmd.RawScore != nil {
		node, err = gradetree.NewLeaf(cmd.Name, cmd.Weight, *cmd.RawScore)
	} else {
		node, err = gradetree.NewComposite(cmd.Name, cmd.Weight)
	}
	if err != nil {
		return nil, err
	}

	records, err := h.nodeRepo.ListByEnrollment(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grade nodes: %w", err)
	}

	// Positions are never reused, so a delete cannot make two siblings tie.
	position := 0
	parentFound := cmd.ParentID == ""
	for _, rec := range records {
		if rec.ParentID == cmd.ParentID {
			position = max(position, rec.Position+1)
		}
		if rec.ID == cmd.ParentID {
			parentFound = true
			if rec.RawScore != nil {
				return nil, shared.NewValidationError("gradetree", "RecordGradeNode",
					fmt.Sprintf("parent %s holds a raw score and cannot have children", rec.ID))
			}
		}
	}
	if !parentFound {
		return nil, shared.NewNotFoundError("gradetree", "RecordGradeNode", cmd.ParentID)
	}

	rec := gradetree.NodeRecord{
		ID:           node.ID,
		EnrollmentID: cmd.EnrollmentID,
		ParentID:     cmd.ParentID,
		Name:         node.Name,
		Weight:       node.Weight(),
		RawScore:     cmd.RawScore,
		Position:     position,
	}
	if err := h.nodeRepo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save grade node: %w", err)
	}

	h.logger.Debug("grade node recorded", logger.EnrollmentID(rec.EnrollmentID), logger.NodeID(rec.ID))
	return &rec, nil
}

// Update changes a node's weight or score.
func (h *GradeNodeHandler) Update(ctx context.Context, cmd UpdateGradeNodeCommand) (*gradetree.NodeRecord, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	rec, err := h.nodeRepo.GetByID(ctx, cmd.NodeID)
	if err != nil {
		return nil, err
	}
	if _, err := h.activeEnrollment(ctx, rec.EnrollmentID, "UpdateGradeNode"); err != nil {
		return nil, err
	}

	// Validate through the domain node so bounds stay in one place.
	node, err := gradetree.NewComposite(rec.Name, rec.Weight)
	if err != nil {
		return nil, err
	}
	if cmd.Weight != nil {
		if err := node.SetWeight(*cmd.Weight); err != nil {
			return nil, err
		}
		rec.Weight = node.Weight()
	}

	switch {
	case cmd.RawScore != nil:
		hasChildren, err := h.hasChildren(ctx, rec)
		if err != nil {
			return nil, err
		}
		if hasChildren {
			return nil, shared.NewValidationError("gradetree", "UpdateGradeNode",
				fmt.Sprintf("node %s has children; its score is calculated", rec.ID))
		}
		if err := node.SetRawScore(*cmd.RawScore); err != nil {
			return nil, err
		}
		score := *cmd.RawScore
		rec.RawScore = &score
	case cmd.ClearScore:
		rec.RawScore = nil
	}

	if err := h.nodeRepo.Save(ctx, *rec); err != nil {
		return nil, fmt.Errorf("failed to save grade node: %w", err)
	}
	return rec, nil
}

// Delete removes a node and its whole subtree and returns the removed IDs.
func (h *GradeNodeHandler) Delete(ctx context.Context, cmd DeleteGradeNodeCommand) ([]string, error) {
	rec, err := h.nodeRepo.GetByID(ctx, cmd.NodeID)
	if err != nil {
		return nil, err
	}
	if _, err := h.activeEnrollment(ctx, rec.EnrollmentID, "DeleteGradeNode"); err != nil {
		return nil, err
	}

	records, err := h.nodeRepo.ListByEnrollment(ctx, rec.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grade nodes: %w", err)
	}
	roots, err := gradetree.Build(records)
	if err != nil {
		return nil, err
	}
	node := gradetree.FindIn(roots, rec.ID)
	if node == nil {
		return nil, shared.NewNotFoundError("gradetree", "DeleteGradeNode", rec.ID)
	}

	ids := node.Delete()
	if err := h.nodeRepo.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete grade nodes: %w", err)
	}

	h.logger.Debug("grade subtree deleted",
		logger.EnrollmentID(rec.EnrollmentID),
		logger.NodeID(rec.ID),
		logger.Int("removed", len(ids)),
	)
	return ids, nil
}

func (h *GradeNodeHandler) activeEnrollment(ctx context.Context, id, op string) (*enrollment.Enrollment, error) {
	e, err := h.enrollmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != enrollment.StatusActive {
		return nil, shared.NewStateConflictError("gradetree", op,
			fmt.Sprintf("enrollment %s is %s; its grade tree is read-only", e.ID, e.Status))
	}
	return e, nil
}

func (h *GradeNodeHandler) hasChildren(ctx context.Context, rec *gradetree.NodeRecord) (bool, error) {
	records, err := h.nodeRepo.ListByEnrollment(ctx, rec.EnrollmentID)
	if err != nil {
		return false, fmt.Errorf("failed to list grade nodes: %w", err)
	}
	for _, r := range records {
		if r.ParentID == rec.ID {
			return true, nil
		}
	}
	return false, nil
}
