// Package gradetree implements the weighted grade-aggregation tree.
//
// A course grade is modelled as a forest of nodes: leaves hold raw scores on
// the 10-point scale, composites aggregate their children as a weighted mean.
// Evaluation is a bottom-up recursive fold recomputed on every read; trees are
// shallow (course, component, sub-component, item) and scores change often.
package gradetree

import (
	"math"

	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/google/uuid"
)

const domainName = "gradetree"

// Bounds for scores and weights.
const (
	MinScore  = 0.0
	MaxScore  = 10.0
	MinWeight = 0.0
	MaxWeight = 1.0

	// WeightTolerance is the accepted deviation when weights must sum to 1.0.
	WeightTolerance = 0.001
)

// ErrCycle is returned when attaching a node would make it its own ancestor.
var ErrCycle = shared.NewDomainError(domainName, "AddChild", shared.ErrValidation,
	"node cannot be attached under itself or one of its descendants")

// ErrAlreadyAttached is returned when a node that already has a parent is attached again.
var ErrAlreadyAttached = shared.NewDomainError(domainName, "AddChild", shared.ErrValidation,
	"node already has a parent")

// ══════════════════════════════════════════════════════════════════════════════
// NODE
// ══════════════════════════════════════════════════════════════════════════════

// Node is a single entry of the grade tree.
// The parent's children slice is the only owning path; parent is a back-reference.
type Node struct {
	ID       string
	Name     string
	weight   float64
	rawScore *float64
	children []*Node
	parent   *Node
}

// NewLeaf creates a node holding a raw score.
func NewLeaf(name string, weight, score float64) (*Node, error) {
	n, err := NewComposite(name, weight)
	if err != nil {
		return nil, err
	}
	if err := n.SetRawScore(score); err != nil {
		return nil, err
	}
	return n, nil
}

// NewComposite creates a node without a raw score; its value comes from children.
func NewComposite(name string, weight float64) (*Node, error) {
	if err := validateWeight("New", weight); err != nil {
		return nil, err
	}
	return &Node{
		ID:     uuid.NewString(),
		Name:   name,
		weight: weight,
	}, nil
}

// Weight returns the node's own weight.
func (n *Node) Weight() float64 { return n.weight }

// RawScore returns the directly recorded score, if any.
func (n *Node) RawScore() (float64, bool) {
	if n.rawScore == nil {
		return 0, false
	}
	return *n.rawScore, true
}

// Parent returns the parent node or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// SetRawScore records a score. Out-of-range values leave the node unchanged.
func (n *Node) SetRawScore(score float64) error {
	if math.IsNaN(score) || score < MinScore || score > MaxScore {
		return shared.NewRangeError(domainName, "SetRawScore", "score", score, MinScore, MaxScore)
	}
	n.rawScore = &score
	return nil
}

// ClearRawScore removes the recorded score.
func (n *Node) ClearRawScore() {
	n.rawScore = nil
}

// SetWeight changes the node's weight. Out-of-range values leave the node unchanged.
func (n *Node) SetWeight(weight float64) error {
	if err := validateWeight("SetWeight", weight); err != nil {
		return err
	}
	n.weight = weight
	return nil
}

func validateWeight(op string, weight float64) error {
	if math.IsNaN(weight) || weight < MinWeight || weight > MaxWeight {
		return shared.NewRangeError(domainName, op, "weight", weight, MinWeight, MaxWeight)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// CalculatedScore returns the node's score.
//
// A leaf returns its raw score verbatim. A composite returns the weighted mean
// of the children that resolve to a score; children without one contribute
// neither score nor weight. A composite with no resolvable weight has no value.
func (n *Node) CalculatedScore() (float64, bool) {
	if n.IsLeaf() {
		return n.RawScore()
	}
	return weightedMean(n.children)
}

// WeightedValue returns CalculatedScore multiplied by the node's own weight.
func (n *Node) WeightedValue() (float64, bool) {
	score, ok := n.CalculatedScore()
	if !ok {
		return 0, false
	}
	return score * n.weight, true
}

func weightedMean(nodes []*Node) (float64, bool) {
	var sum, weights float64
	for _, c := range nodes {
		score, ok := c.CalculatedScore()
		if !ok {
			continue
		}
		sum += score * c.weight
		weights += c.weight
	}
	if weights <= 0 {
		return 0, false
	}
	return sum / weights, true
}

// CompositeScore aggregates a root set the same way a composite aggregates its children.
func CompositeScore(roots []*Node) (float64, bool) {
	return weightedMean(roots)
}

// RootWeightsSumToOne checks that the weights of a root set sum to 1.0.
func RootWeightsSumToOne(roots []*Node) bool {
	var total float64
	for _, r := range roots {
		total += r.weight
	}
	return math.Abs(total-1.0) <= WeightTolerance
}

// ══════════════════════════════════════════════════════════════════════════════
// STRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

// AddChild appends child and sets its back-reference.
// Attaching n or any ancestor of n under n is rejected with ErrCycle.
func (n *Node) AddChild(child *Node) error {
	if child == nil {
		return shared.NewValidationError(domainName, "AddChild", "child cannot be nil")
	}
	for a := n; a != nil; a = a.parent {
		if a == child {
			return ErrCycle
		}
	}
	if child.parent != nil {
		return ErrAlreadyAttached
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// RemoveChild detaches child and clears its parent. Returns false if child
// is not a direct child of n.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Delete detaches n from its parent and releases its whole subtree.
// It returns the IDs of every removed node, n included, in pre-order.
func (n *Node) Delete() []string {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
	var removed []string
	var release func(*Node)
	release = func(x *Node) {
		removed = append(removed, x.ID)
		for _, c := range x.children {
			release(c)
			c.parent = nil
		}
		x.children = nil
	}
	release(n)
	return removed
}

// Walk visits n and its descendants depth-first in pre-order.
// Returning false from fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Depth returns the number of ancestors of n.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Find returns the node with the given ID within n's subtree.
func (n *Node) Find(id string) *Node {
	var found *Node
	n.Walk(func(x *Node) bool {
		if found != nil {
			return false
		}
		if x.ID == id {
			found = x
			return false
		}
		return true
	})
	return found
}
