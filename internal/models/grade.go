package models

import "time"

// Grading scheme constants. Every course is graded over three fixed units,
// each scored on a 0-20 scale; an average at or above the pass threshold
// earns the "Approved" observation.
const (
	GradeUnitCount = 3
	GradeMinScore  = 0.0
	GradeMaxScore  = 20.0
	PassThreshold  = 11.0

	ObservationApproved = "Approved"
	ObservationFailed   = "Failed"
)

// Grade records a single per-unit score for an enrollment.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Unit         int       `db:"unit" json:"unit"`
	Score        float64   `db:"score" json:"score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ValidUnit reports whether the unit falls inside the fixed unit scheme.
func ValidUnit(unit int) bool {
	return unit >= 1 && unit <= GradeUnitCount
}

// ValidScore reports whether the score falls inside the grading scale.
func ValidScore(score float64) bool {
	return score >= GradeMinScore && score <= GradeMaxScore
}

// AverageScore computes the grade average over the fixed unit count. A
// partial set of grades therefore yields a deflated average; callers must
// submit all units for a meaningful result.
func AverageScore(grades []Grade) float64 {
	var sum float64
	for _, g := range grades {
		sum += g.Score
	}
	return sum / GradeUnitCount
}

// Observation derives the pass/fail label for an average.
func Observation(average float64) string {
	if average >= PassThreshold {
		return ObservationApproved
	}
	return ObservationFailed
}
