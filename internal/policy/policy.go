// Package policy centralises role-based visibility decisions. Each operation
// maps a caller's role to an allow/deny outcome plus an optional row scope
// that narrows list results instead of rejecting the call outright.
package policy

import (
	"github.com/noah-isme/academic-records-api/internal/models"
)

// Operation identifies a guarded API operation.
type Operation string

const (
	OpProgramList   Operation = "program.list"
	OpProgramGet    Operation = "program.get"
	OpProgramManage Operation = "program.manage"

	OpCourseList   Operation = "course.list"
	OpCourseGet    Operation = "course.get"
	OpCourseManage Operation = "course.manage"
	OpRosterExport Operation = "course.roster_export"

	OpEnrollmentManage  Operation = "enrollment.manage"
	OpEnrollmentList    Operation = "enrollment.list"
	OpEnrollmentListOwn Operation = "enrollment.list_own"
	OpGradesWrite       Operation = "grades.write"

	OpStudentList Operation = "user.student_list"
	OpStudentGet  Operation = "user.student_get"
	OpTeacherList Operation = "user.teacher_list"
	OpTeacherGet  Operation = "user.teacher_get"
	OpAdminList   Operation = "user.admin_list"
	OpAdminGet    Operation = "user.admin_get"
	OpUserManage  Operation = "user.manage"

	OpProfileComplete Operation = "user.profile_complete"
	OpReportGenerate  Operation = "report.generate"
)

// Scope narrows row visibility for list operations. Zero values mean
// unrestricted access for the corresponding dimension.
type Scope struct {
	// TeacherID restricts rows to courses taught by this instructor.
	TeacherID string
	// StudentID restricts rows to enrollments of this student.
	StudentID string
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
	Scope   Scope
}

func allow() Decision              { return Decision{Allowed: true} }
func allowScoped(s Scope) Decision { return Decision{Allowed: true, Scope: s} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// For decides whether the caller may perform the operation and, for list
// operations, which rows remain visible.
func For(role models.UserRole, userID string, op Operation) Decision {
	switch op {
	case OpProgramList, OpProgramGet, OpCourseGet, OpReportGenerate, OpProfileComplete:
		return allow()

	case OpProgramManage:
		if role == models.RoleAdmin {
			return allow()
		}
		return deny("only administrators can manage programs")

	case OpCourseList:
		switch role {
		case models.RoleAdmin:
			return allow()
		case models.RoleInstructor:
			return allowScoped(Scope{TeacherID: userID})
		case models.RoleStudent:
			return allowScoped(Scope{StudentID: userID})
		}

	case OpCourseManage:
		if role == models.RoleAdmin {
			return allow()
		}
		return deny("only administrators can manage courses")

	case OpRosterExport:
		switch role {
		case models.RoleAdmin:
			return allow()
		case models.RoleInstructor:
			return allowScoped(Scope{TeacherID: userID})
		}
		return deny("students cannot export course rosters")

	case OpEnrollmentManage:
		if role == models.RoleAdmin {
			return allow()
		}
		return deny("only administrators can enroll or remove students")

	case OpEnrollmentList:
		switch role {
		case models.RoleAdmin:
			return allow()
		case models.RoleInstructor:
			return allowScoped(Scope{TeacherID: userID})
		}
		return deny("students cannot list all enrollments")

	case OpEnrollmentListOwn:
		if role == models.RoleStudent {
			return allowScoped(Scope{StudentID: userID})
		}
		return deny("only students can view their own enrollments")

	case OpGradesWrite:
		if role == models.RoleAdmin || role == models.RoleInstructor {
			return allow()
		}
		return deny("only administrators and instructors can update grades")

	case OpStudentList, OpStudentGet:
		switch role {
		case models.RoleAdmin:
			return allow()
		case models.RoleInstructor:
			return allowScoped(Scope{TeacherID: userID})
		}
		return deny("students cannot view the student roster")

	case OpTeacherList, OpTeacherGet, OpAdminList, OpAdminGet:
		if role == models.RoleAdmin {
			return allow()
		}
		return deny("only administrators can view this roster")

	case OpUserManage:
		if role == models.RoleAdmin {
			return allow()
		}
		return deny("only administrators can manage users")
	}

	return deny("unknown operation")
}
