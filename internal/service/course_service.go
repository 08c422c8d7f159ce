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
	"github.com/noah-isme/academic-records-api/pkg/export"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	Roster(ctx context.Context, courseID string) ([]models.User, error)
}

type courseUserRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
}

// CourseRequest holds payload for creating or updating a course.
type CourseRequest struct {
	Name      string            `json:"name" validate:"required"`
	Semester  string            `json:"semester" validate:"required"`
	Credits   int               `json:"credits" validate:"required,gt=0"`
	Hours     int               `json:"hours" validate:"required,gt=0"`
	Mode      models.CourseMode `json:"mode" validate:"required"`
	ProgramID string            `json:"program_id" validate:"required"`
	TeacherID string            `json:"teacher_id" validate:"required"`
}

// CourseService handles course use cases.
type CourseService struct {
	repo      courseRepository
	programs  programRepository
	users     courseUserRepository
	csv       *export.CSVExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, programs programRepository, users courseUserRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		repo:      repo,
		programs:  programs,
		users:     users,
		csv:       export.NewCSVExporter(),
		validator: validate,
		logger:    logger,
	}
}

// List returns courses visible to the caller. Instructors see their own
// courses, students the courses they are enrolled in.
func (s *CourseService) List(ctx context.Context, actor Actor, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpCourseList)
	if !decision.Allowed {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	filter.TeacherID = decision.Scope.TeacherID
	filter.EnrolledStudentID = decision.Scope.StudentID

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one course with program and teacher info.
func (s *CourseService) Get(ctx context.Context, actor Actor, id string) (*models.CourseDetail, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpCourseGet)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	course, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course after validating its program and
// instructor references.
func (s *CourseService) Create(ctx context.Context, actor Actor, req CourseRequest) (*models.Course, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpCourseManage)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	course, err := s.validateCourseRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update replaces a course's attributes.
func (s *CourseService) Update(ctx context.Context, actor Actor, id string, req CourseRequest) (*models.Course, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpCourseManage)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	course, err := s.validateCourseRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	course.ID = existing.ID
	course.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course. Its enrollments and grades are removed by the
// database cascade.
func (s *CourseService) Delete(ctx context.Context, actor Actor, id string) error {
	decision := policy.For(actor.Role, actor.ID, policy.OpCourseManage)
	if !decision.Allowed {
		return appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// ExportRoster renders the list of students enrolled in a course as CSV.
// Instructors may only export rosters of courses they teach.
func (s *CourseService) ExportRoster(ctx context.Context, actor Actor, courseID string) ([]byte, string, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpRosterExport)
	if !decision.Allowed {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if decision.Scope.TeacherID != "" && course.TeacherID != decision.Scope.TeacherID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "course is taught by another instructor")
	}

	students, err := s.repo.Roster(ctx, courseID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{Headers: []string{"Name", "Email"}}
	for _, st := range students {
		dataset.Rows = append(dataset.Rows, map[string]string{"Name": st.Name, "Email": st.Email})
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	filename := fmt.Sprintf("roster-%s.csv", course.ID)
	return payload, filename, nil
}

func (s *CourseService) validateCourseRequest(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !req.Mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course mode")
	}

	if _, err := s.programs.FindByID(ctx, req.ProgramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	if _, err := s.users.FindByIDAndRole(ctx, req.TeacherID, models.RoleInstructor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}

	return &models.Course{
		Name:      req.Name,
		Semester:  req.Semester,
		Credits:   req.Credits,
		Hours:     req.Hours,
		Mode:      req.Mode,
		ProgramID: req.ProgramID,
		TeacherID: req.TeacherID,
	}, nil
}
