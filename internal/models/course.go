package models

import "time"

// CourseMode describes how a course is delivered.
type CourseMode string

const (
	CourseModeOnSite CourseMode = "ONSITE"
	CourseModeOnline CourseMode = "ONLINE"
	CourseModeHybrid CourseMode = "HYBRID"
)

// Valid reports whether the mode belongs to the closed mode set.
func (m CourseMode) Valid() bool {
	switch m {
	case CourseModeOnSite, CourseModeOnline, CourseModeHybrid:
		return true
	}
	return false
}

// Course belongs to exactly one program and one instructor.
type Course struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Semester  string     `db:"semester" json:"semester"`
	Credits   int        `db:"credits" json:"credits"`
	Hours     int        `db:"hours" json:"hours"`
	Mode      CourseMode `db:"mode" json:"mode"`
	ProgramID string     `db:"program_id" json:"program_id"`
	TeacherID string     `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with program and teacher info.
type CourseDetail struct {
	Course
	ProgramName     string `db:"program_name" json:"program_name"`
	TeacherName     string `db:"teacher_name" json:"teacher_name"`
	TeacherEmail    string `db:"teacher_email" json:"teacher_email"`
	EnrollmentCount int    `db:"enrollment_count" json:"enrollment_count"`
}

// CourseFilter provides filters for listing courses. TeacherID and
// EnrolledStudentID are row-level visibility scopes applied by the policy
// layer, not caller-supplied filters.
type CourseFilter struct {
	Search            string
	TeacherID         string
	EnrolledStudentID string
	Page              int
	PageSize          int
}
