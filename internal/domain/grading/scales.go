package grading

// breakpoint maps a minimum 10-point score to a GPA value and letter.
type breakpoint struct {
	minScore float64
	gpa      float64
	letter   string
}

// breakpoints is shared by Scale10 and Scale4; the input is always the raw 10-point score.
var breakpoints = []breakpoint{
	{9.0, 4.0, "A"},
	{8.5, 3.7, "A-"},
	{8.0, 3.5, "B+"},
	{7.0, 3.0, "B"},
	{6.5, 2.5, "C+"},
	{5.5, 2.0, "C"},
	{5.0, 1.5, "D+"},
	{4.0, 1.0, "D"},
}

func lookup(score float64) (float64, string) {
	for _, bp := range breakpoints {
		if score >= bp.minScore {
			return bp.gpa, bp.letter
		}
	}
	return 0.0, "F"
}

// ─────────────────────────────────────────────────────────────────────────────
// Scale10
// ─────────────────────────────────────────────────────────────────────────────

type scale10 struct{}

func (scale10) Scale() Scale          { return Scale10 }
func (scale10) Name() string          { return "10-point scale" }
func (scale10) MaxGrade() float64     { return 10.0 }
func (scale10) PassingGrade() float64 { return 4.0 }

func (scale10) Calculate(scores, weights []float64) (float64, error) {
	sum, err := WeightedSum(scores, weights)
	if err != nil {
		return 0, err
	}
	return round2(sum), nil
}

func (scale10) GPA(score float64) float64 {
	gpa, _ := lookup(score)
	return gpa
}

func (scale10) LetterGrade(score float64) string {
	_, letter := lookup(score)
	return letter
}

func (s scale10) IsPassing(score float64) bool { return score >= s.PassingGrade() }

// ─────────────────────────────────────────────────────────────────────────────
// Scale4
// ─────────────────────────────────────────────────────────────────────────────

type scale4 struct{}

func (scale4) Scale() Scale          { return Scale4 }
func (scale4) Name() string          { return "4-point GPA scale" }
func (scale4) MaxGrade() float64     { return 4.0 }
func (scale4) PassingGrade() float64 { return 1.0 }

// Calculate returns the converted 4-point GPA, not the 10-point sum.
func (s scale4) Calculate(scores, weights []float64) (float64, error) {
	sum, err := WeightedSum(scores, weights)
	if err != nil {
		return 0, err
	}
	// Float accumulation can land just under a breakpoint (7.9999...).
	return s.GPA(round2(sum)), nil
}

func (scale4) GPA(score float64) float64 {
	gpa, _ := lookup(score)
	return gpa
}

func (scale4) LetterGrade(score float64) string {
	_, letter := lookup(score)
	return letter
}

func (s scale4) IsPassing(score float64) bool { return s.GPA(score) >= s.PassingGrade() }

// ─────────────────────────────────────────────────────────────────────────────
// PassFail
// ─────────────────────────────────────────────────────────────────────────────

type passFail struct{}

func (passFail) Scale() Scale          { return PassFail }
func (passFail) Name() string          { return "pass/fail" }
func (passFail) MaxGrade() float64     { return 1.0 }
func (passFail) PassingGrade() float64 { return 5.0 }

func (p passFail) Calculate(scores, weights []float64) (float64, error) {
	sum, err := WeightedSum(scores, weights)
	if err != nil {
		return 0, err
	}
	return p.GPA(round2(sum)), nil
}

// GPA is 1.0 for a pass and 0.0 for a fail.
func (p passFail) GPA(score float64) float64 {
	if p.IsPassing(score) {
		return 1.0
	}
	return 0.0
}

func (p passFail) LetterGrade(score float64) string {
	if p.IsPassing(score) {
		return "P"
	}
	return "F"
}

func (p passFail) IsPassing(score float64) bool { return score >= p.PassingGrade() }
