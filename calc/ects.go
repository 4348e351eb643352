package calc

import "math"

// ECTSInput describes one course's weekly workload over a semester.
type ECTSInput struct {
	LectureHours   float64 `validate:"gte=0"`
	SelfStudyHours float64 `validate:"gte=0"`
	Weeks          int     `validate:"gte=1,lte=52"`
}

// Credits converts the workload into ECTS credits: total semester hours
// divided by the 30 hours one credit represents, rounded to two decimals.
func Credits(input ECTSInput) (float64, error) {
	if err := checkStruct(input); err != nil {
		return 0, err
	}
	if input.LectureHours == 0 && input.SelfStudyHours == 0 {
		return 0, validationError("at least one of lecture hours and self-study hours must be greater than zero")
	}
	credits := (input.LectureHours + input.SelfStudyHours) * float64(input.Weeks) / 30
	return math.Round(credits*100) / 100, nil
}
