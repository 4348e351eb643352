package calc

import "math"

// GermanGradeInput converts a score from a foreign grading scale.
type GermanGradeInput struct {
	Score       float64 `validate:"gtefield=MinPassing,ltefield=MaxPossible"`
	MaxPossible float64 `validate:"gtfield=MinPassing"`
	MinPassing  float64 `validate:"gte=0"`
}

// GermanGradeResult is the converted grade on the German 1.0–6.0 scale.
type GermanGradeResult struct {
	Grade          float64
	Classification string
	Passing        bool
}

// German grade classification bands.
const (
	ClassVeryGood     = "Very Good"
	ClassGood         = "Good"
	ClassSatisfactory = "Satisfactory"
	ClassSufficient   = "Sufficient"
	ClassFailed       = "Failed"
)

// GermanGrade applies the modified Bavarian formula:
// grade = 1 + 3 * (max - score) / (max - minPassing), rounded to one decimal.
// The best possible score maps to 1.0, the minimum passing score to 4.0.
func GermanGrade(input GermanGradeInput) (GermanGradeResult, error) {
	if err := checkStruct(input); err != nil {
		return GermanGradeResult{}, err
	}
	grade := 1 + 3*(input.MaxPossible-input.Score)/(input.MaxPossible-input.MinPassing)
	grade = math.Round(grade*10) / 10
	return GermanGradeResult{
		Grade:          grade,
		Classification: classify(grade),
		Passing:        grade <= 4.0,
	}, nil
}

func classify(grade float64) string {
	switch {
	case grade <= 1.5:
		return ClassVeryGood
	case grade <= 2.5:
		return ClassGood
	case grade <= 3.5:
		return ClassSatisfactory
	case grade <= 4.0:
		return ClassSufficient
	default:
		return ClassFailed
	}
}
