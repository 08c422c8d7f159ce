package models

import "time"

// Enrollment links one student to one course. At most one enrollment may
// exist per (student, course) pair, enforced by a database constraint.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with student, course, program and
// teacher info plus the recorded grades.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string  `db:"student_name" json:"student_name"`
	StudentEmail string  `db:"student_email" json:"student_email"`
	CourseName   string  `db:"course_name" json:"course_name"`
	Credits      int     `db:"credits" json:"credits"`
	Hours        int     `db:"hours" json:"hours"`
	Mode         string  `db:"mode" json:"mode"`
	ProgramName  string  `db:"program_name" json:"program_name"`
	TeacherName  string  `db:"teacher_name" json:"teacher_name"`
	Grades       []Grade `json:"grades"`
}

// EnrollmentFilter provides filters for listing enrollments. TeacherID and
// StudentID are visibility scopes applied by the policy layer.
type EnrollmentFilter struct {
	Search    string
	StudentID string
	TeacherID string
	CourseID  string
	Page      int
	PageSize  int
}
