package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/policy"
	"github.com/noah-isme/academic-records-api/internal/repository"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByPair(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
}

type gradeRepository interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Grade, error)
	ReplaceForEnrollment(ctx context.Context, enrollmentID string, grades []models.Grade) error
}

type enrollmentUserRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollRequest links a student to a course.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// GradeInput carries one unit score in an UpdateGradesRequest.
type GradeInput struct {
	Unit  int     `json:"unit"`
	Score float64 `json:"score"`
}

// UpdateGradesRequest replaces the full grade set of an enrollment.
type UpdateGradesRequest struct {
	StudentID string       `json:"student_id" validate:"required"`
	CourseID  string       `json:"course_id" validate:"required"`
	Grades    []GradeInput `json:"grades" validate:"required,min=1"`
}

// EnrollmentService handles enrollment and grading use cases.
type EnrollmentService struct {
	repo      enrollmentRepository
	grades    gradeRepository
	users     enrollmentUserRepository
	courses   enrollmentCourseRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, grades gradeRepository, users enrollmentUserRepository, courses enrollmentCourseRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		grades:    grades,
		users:     users,
		courses:   courses,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns enrollments visible to the caller. Instructors see
// enrollments in courses they teach; administrators see everything.
func (s *EnrollmentService) List(ctx context.Context, actor Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpEnrollmentList)
	if !decision.Allowed {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	filter.TeacherID = decision.Scope.TeacherID
	return s.list(ctx, filter)
}

// ListOwn returns the caller's own enrollments with grades attached. The
// student transcript view builds on this.
func (s *EnrollmentService) ListOwn(ctx context.Context, actor Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpEnrollmentListOwn)
	if !decision.Allowed {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	filter.StudentID = decision.Scope.StudentID
	return s.list(ctx, filter)
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	for i := range enrollments {
		grades, err := s.grades.ListByEnrollment(ctx, enrollments[i].ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		enrollments[i].Grades = grades
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one enrollment with grades, subject to the caller's scope.
func (s *EnrollmentService) Get(ctx context.Context, actor Actor, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.authorizeEnrollmentAccess(ctx, actor, detail); err != nil {
		return nil, err
	}
	grades, err := s.grades.ListByEnrollment(ctx, detail.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	detail.Grades = grades
	return detail, nil
}

// Enroll links a student to a course. The unique (student, course)
// constraint turns a concurrent duplicate into a conflict error.
func (s *EnrollmentService) Enroll(ctx context.Context, actor Actor, req EnrollRequest) (*models.Enrollment, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpEnrollmentManage)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.users.FindByIDAndRole(ctx, req.StudentID, models.RoleStudent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, CourseID: req.CourseID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionEnrollmentCreate,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		NewValues:  []byte(fmt.Sprintf(`{"student_id":%q,"course_id":%q}`, req.StudentID, req.CourseID)),
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}

	return enrollment, nil
}

// Unenroll removes a student from a course. The enrollment's grades go
// with it through the database cascade.
func (s *EnrollmentService) Unenroll(ctx context.Context, actor Actor, studentID, courseID string) error {
	decision := policy.For(actor.Role, actor.ID, policy.OpEnrollmentManage)
	if !decision.Allowed {
		return appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	enrollment, err := s.repo.FindByPair(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.repo.Delete(ctx, enrollment.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionEnrollmentDelete,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		OldValues:  []byte(fmt.Sprintf(`{"student_id":%q,"course_id":%q}`, studentID, courseID)),
	}); err != nil {
		s.logger.Warn("failed to record unenrollment audit log", zap.Error(err))
	}

	return nil
}

// UpdateGrades replaces the full grade set of an enrollment. Preconditions
// are checked in a fixed order before any write: caller role, student
// existence, enrollment existence, course existence, unit range, score
// range. Any failure leaves the stored grades untouched.
func (s *EnrollmentService) UpdateGrades(ctx context.Context, actor Actor, req UpdateGradesRequest) ([]models.Grade, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpGradesWrite)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grades payload")
	}

	if _, err := s.users.FindByIDAndRole(ctx, req.StudentID, models.RoleStudent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	enrollment, err := s.repo.FindByPair(ctx, req.StudentID, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role == models.RoleInstructor && course.TeacherID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course is taught by another instructor")
	}

	grades := make([]models.Grade, 0, len(req.Grades))
	for _, in := range req.Grades {
		if !models.ValidUnit(in.Unit) {
			return nil, appErrors.Clone(appErrors.ErrInvalidUnit, fmt.Sprintf("grade unit %d is outside the unit scheme", in.Unit))
		}
		if !models.ValidScore(in.Score) {
			return nil, appErrors.Clone(appErrors.ErrInvalidScore, fmt.Sprintf("grade score %.2f is outside the grading scale", in.Score))
		}
		grades = append(grades, models.Grade{Unit: in.Unit, Score: in.Score})
	}

	if err := s.grades.ReplaceForEnrollment(ctx, enrollment.ID, grades); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace grades")
	}
	s.metrics.RecordGradeWrite()

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionGradesUpdate,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		NewValues:  []byte(fmt.Sprintf(`{"grade_count":%d}`, len(grades))),
	}); err != nil {
		s.logger.Warn("failed to record grades audit log", zap.Error(err))
	}

	return grades, nil
}

func (s *EnrollmentService) authorizeEnrollmentAccess(ctx context.Context, actor Actor, detail *models.EnrollmentDetail) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStudent:
		if detail.StudentID == actor.ID {
			return nil
		}
	case models.RoleInstructor:
		course, err := s.courses.FindByID(ctx, detail.CourseID)
		if err == nil && course.TeacherID == actor.ID {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
}
