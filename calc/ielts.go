package calc

import "math"

// IELTSScores are the four section scores, each on the 0–9 band scale.
type IELTSScores struct {
	Listening float64 `validate:"gte=0,lte=9"`
	Reading   float64 `validate:"gte=0,lte=9"`
	Writing   float64 `validate:"gte=0,lte=9"`
	Speaking  float64 `validate:"gte=0,lte=9"`
}

// OverallBand computes the IELTS overall band: the arithmetic mean of the
// four section scores rounded to the nearest half band per the official
// rule — fractions below .25 round down, .25 up to (but not including) .75
// round to the half, .75 and above round up to the next whole band.
func OverallBand(scores IELTSScores) (float64, error) {
	if err := checkStruct(scores); err != nil {
		return 0, err
	}
	mean := (scores.Listening + scores.Reading + scores.Writing + scores.Speaking) / 4
	return roundToHalfBand(mean), nil
}

func roundToHalfBand(mean float64) float64 {
	whole := math.Floor(mean)
	switch frac := mean - whole; {
	case frac < 0.25:
		return whole
	case frac < 0.75:
		return whole + 0.5
	default:
		return whole + 1
	}
}
