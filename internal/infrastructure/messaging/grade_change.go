package messaging

import (
	"time"

	"github.com/alem-hub/gradebook/internal/domain/alert"
	"github.com/alem-hub/gradebook/internal/domain/enrollment"
	"github.com/alem-hub/gradebook/internal/domain/gradetree"
	"github.com/alem-hub/gradebook/internal/domain/student"
)

// GradeChange is the payload passed to every handler on the bus.
// Student is shared and mutated in place, so handlers later in the chain
// observe the GPA and standing written by earlier ones.
type GradeChange struct {
	Student    *student.Student
	Enrollment *enrollment.Enrollment

	// Node is the grade tree root when the grade was finalized from a tree.
	Node *gradetree.Node

	// Previous is the student's GPA and standing before this change.
	Previous   student.Snapshot
	OccurredAt time.Time

	alerts []*alert.Alert
}

// NewGradeChange captures the student's current state as Previous.
func NewGradeChange(st *student.Student, e *enrollment.Enrollment, at time.Time) *GradeChange {
	return &GradeChange{
		Student:    st,
		Enrollment: e,
		Previous:   st.Snapshot(),
		OccurredAt: at,
	}
}

// AddAlert records an alert raised by a handler.
func (c *GradeChange) AddAlert(a *alert.Alert) {
	if a != nil {
		c.alerts = append(c.alerts, a)
	}
}

// Alerts returns alerts raised so far, in the order handlers raised them.
func (c *GradeChange) Alerts() []*alert.Alert {
	out := make([]*alert.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// StandingChanged reports whether the student's standing differs from Previous.
func (c *GradeChange) StandingChanged() bool {
	return c.Student.Standing != c.Previous.Standing
}
