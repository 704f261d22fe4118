package scoring

import (
	"cmp"
	"fmt"
	"slices"
)

// FallbackGrade is assigned below the lowest boundary.
const FallbackGrade = "F"

// GradeBoundary is the minimum score for a grade.
type GradeBoundary struct {
	Grade string `json:"grade"`
	Min   int    `json:"min"`
}

// GradeScale maps scores to letter grades. Boundaries are held in descending
// order of Min.
type GradeScale struct {
	bounds []GradeBoundary
}

// DefaultGradeScale returns A+ at 95 down to D at 60.
func DefaultGradeScale() GradeScale {
	return GradeScale{bounds: []GradeBoundary{
		{Grade: "A+", Min: 95},
		{Grade: "A", Min: 90},
		{Grade: "B+", Min: 85},
		{Grade: "B", Min: 80},
		{Grade: "C+", Min: 75},
		{Grade: "C", Min: 70},
		{Grade: "D+", Min: 65},
		{Grade: "D", Min: 60},
	}}
}

// NewGradeScale builds a scale from grade to minimum score. Scores under every
// boundary get FallbackGrade.
func NewGradeScale(mins map[string]int) (GradeScale, error) {
	if len(mins) == 0 {
		return GradeScale{}, fmt.Errorf("%w: no boundaries", ErrInvalidGradeScale)
	}
	bounds := make([]GradeBoundary, 0, len(mins))
	seen := make(map[int]string, len(mins))
	for grade, lowest := range mins {
		if grade == "" || grade == FallbackGrade {
			return GradeScale{}, fmt.Errorf("%w: grade %q is reserved", ErrInvalidGradeScale, grade)
		}
		if lowest <= 0 || lowest > maxScoreValue {
			return GradeScale{}, fmt.Errorf("%w: %s minimum %d outside (0,100]", ErrInvalidGradeScale, grade, lowest)
		}
		if other, dup := seen[lowest]; dup {
			return GradeScale{}, fmt.Errorf("%w: %s and %s share minimum %d", ErrInvalidGradeScale, grade, other, lowest)
		}
		seen[lowest] = grade
		bounds = append(bounds, GradeBoundary{Grade: grade, Min: lowest})
	}
	slices.SortFunc(bounds, func(a, b GradeBoundary) int { return cmp.Compare(b.Min, a.Min) })
	return GradeScale{bounds: bounds}, nil
}

// Grade returns the grade for score.
func (g GradeScale) Grade(score int) string {
	for _, b := range g.bounds {
		if score >= b.Min {
			return b.Grade
		}
	}
	return FallbackGrade
}

// Boundaries returns a copy of the boundaries, highest first.
func (g GradeScale) Boundaries() []GradeBoundary {
	return slices.Clone(g.bounds)
}
