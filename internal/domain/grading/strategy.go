// Package grading converts normalized 10-point composite scores into GPA
// values, letter grades and pass/fail outcomes.
//
// The set of scales is closed: Scale10, Scale4 and PassFail. Strategies are
// stateless singletons selected per enrollment through a Scale identifier.
package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

const domainName = "grading"

// WeightTolerance is the accepted deviation of a weight sum from 1.0.
const WeightTolerance = 0.001

// ══════════════════════════════════════════════════════════════════════════════
// SCALE
// ══════════════════════════════════════════════════════════════════════════════

// Scale identifies a grading strategy.
type Scale string

const (
	Scale10  Scale = "SCALE_10"
	Scale4   Scale = "SCALE_4"
	PassFail Scale = "PASS_FAIL"
)

// Scales returns every supported scale in declaration order.
func Scales() []Scale {
	return []Scale{Scale10, Scale4, PassFail}
}

// ScaleNames returns the identifiers of every supported scale.
func ScaleNames() []string {
	out := make([]string, 0, 3)
	for _, s := range Scales() {
		out = append(out, string(s))
	}
	return out
}

// ParseScale resolves an identifier case-insensitively.
func ParseScale(id string) (Scale, error) {
	normalized := Scale(strings.ToUpper(strings.TrimSpace(id)))
	switch normalized {
	case Scale10, Scale4, PassFail:
		return normalized, nil
	}
	return "", shared.NewUnknownScaleError("ParseScale", id, ScaleNames())
}

// IsValid reports whether s is one of the supported scales.
func (s Scale) IsValid() bool {
	_, err := ParseScale(string(s))
	return err == nil
}

// String returns the identifier.
func (s Scale) String() string { return string(s) }

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY
// ══════════════════════════════════════════════════════════════════════════════

// Strategy is a named, pure conversion rule over the 10-point scale.
type Strategy interface {
	// Scale returns the identifier the strategy is registered under.
	Scale() Scale
	Name() string
	MaxGrade() float64
	PassingGrade() float64

	// Calculate validates the inputs, computes Σ score·weight and applies the
	// strategy's own conversion to the result.
	Calculate(scores, weights []float64) (float64, error)

	// GPA maps a 10-point score to a 4-point GPA value.
	GPA(score float64) float64

	// LetterGrade maps a 10-point score to a letter.
	LetterGrade(score float64) string

	// IsPassing reports whether the score meets the passing threshold.
	IsPassing(score float64) bool
}

var (
	scale10Strategy  Strategy = scale10{}
	scale4Strategy   Strategy = scale4{}
	passFailStrategy Strategy = passFail{}
)

// GetStrategy resolves the strategy for a scale identifier.
// Lookup is case-insensitive; blank or unknown identifiers fail with an
// unknown-scale error naming the valid set.
func GetStrategy(id string) (Strategy, error) {
	s, err := ParseScale(id)
	if err != nil {
		return nil, shared.NewUnknownScaleError("GetStrategy", id, ScaleNames())
	}
	return For(s), nil
}

// For returns the strategy of a known scale. It panics on an invalid Scale,
// which can only be built by bypassing ParseScale.
func For(s Scale) Strategy {
	switch s {
	case Scale10:
		return scale10Strategy
	case Scale4:
		return scale4Strategy
	case PassFail:
		return passFailStrategy
	}
	panic(fmt.Sprintf("grading: unknown scale %q", string(s)))
}

// WeightedSum validates parallel score/weight sequences and returns Σ score·weight.
func WeightedSum(scores, weights []float64) (float64, error) {
	if len(scores) == 0 || len(weights) == 0 {
		return 0, shared.NewValidationError(domainName, "Calculate", "scores and weights must not be empty")
	}
	if len(scores) != len(weights) {
		return 0, shared.NewValidationError(domainName, "Calculate",
			fmt.Sprintf("got %d scores but %d weights", len(scores), len(weights)))
	}

	var weightSum float64
	for _, w := range weights {
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > WeightTolerance {
		return 0, shared.NewValidationError(domainName, "Calculate",
			fmt.Sprintf("weights must sum to 1.0, got %.4f", weightSum))
	}

	var sum float64
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 || s > 10 {
			return 0, shared.NewValidationError(domainName, "Calculate",
				fmt.Sprintf("score at index %d must be between 0 and 10, got %g", i, s))
		}
		sum += s * weights[i]
	}
	return sum, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
