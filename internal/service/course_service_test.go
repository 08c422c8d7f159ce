package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mockCourseRepo struct {
	courses    map[string]models.Course
	roster     map[string][]models.User
	lastFilter models.CourseFilter
	created    *models.Course
	deleted    []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	m.lastFilter = filter
	var out []models.CourseDetail
	for _, c := range m.courses {
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, models.CourseDetail{Course: c})
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	if c, ok := m.courses[id]; ok {
		return &models.CourseDetail{Course: c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "new-course"
	}
	if m.courses == nil {
		m.courses = make(map[string]models.Course)
	}
	m.courses[course.ID] = *course
	m.created = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCourseRepo) Roster(ctx context.Context, courseID string) ([]models.User, error) {
	return m.roster[courseID], nil
}

type mockProgramRepo struct {
	programs map[string]models.Program
	created  *models.Program
	deleted  []string
}

func (m *mockProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramDetail, int, error) {
	var out []models.ProgramDetail
	for _, p := range m.programs {
		out = append(out, models.ProgramDetail{Program: p})
	}
	return out, len(out), nil
}

func (m *mockProgramRepo) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgramRepo) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = "new-program"
	}
	if m.programs == nil {
		m.programs = make(map[string]models.Program)
	}
	m.programs[program.ID] = *program
	m.created = program
	return nil
}

func (m *mockProgramRepo) Update(ctx context.Context, program *models.Program) error {
	m.programs[program.ID] = *program
	return nil
}

func (m *mockProgramRepo) Delete(ctx context.Context, id string) error {
	delete(m.programs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newCourseFixture() (*mockCourseRepo, *CourseService) {
	repo := &mockCourseRepo{
		courses: map[string]models.Course{
			"c1": {ID: "c1", Name: "Algebra", TeacherID: "t1", ProgramID: "p1", Mode: models.CourseModeOnSite, Credits: 4, Hours: 60},
			"c2": {ID: "c2", Name: "Physics", TeacherID: "t2", ProgramID: "p1", Mode: models.CourseModeOnline, Credits: 3, Hours: 45},
		},
		roster: map[string][]models.User{
			"c1": {{ID: "s1", Name: "Student One", Email: "s1@example.com", Role: models.RoleStudent}},
		},
	}
	programs := &mockProgramRepo{programs: map[string]models.Program{"p1": {ID: "p1", Name: "Mathematics"}}}
	users := &mockUserReader{users: map[string]models.UserRole{"t1": models.RoleInstructor, "t2": models.RoleInstructor, "s1": models.RoleStudent}}
	svc := NewCourseService(repo, programs, users, validator.New(), zap.NewNop())
	return repo, svc
}

func TestCourseServiceListScopedForInstructor(t *testing.T) {
	repo, svc := newCourseFixture()

	courses, _, err := svc.List(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)
	assert.Equal(t, "t1", repo.lastFilter.TeacherID)
}

func TestCourseServiceListScopedForStudent(t *testing.T) {
	repo, svc := newCourseFixture()

	_, _, err := svc.List(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.EnrolledStudentID)
}

func TestCourseServiceCreateUnknownInstructor(t *testing.T) {
	_, svc := newCourseFixture()

	_, err := svc.Create(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, CourseRequest{
		Name: "Chemistry", Semester: "2026-1", Credits: 3, Hours: 45,
		Mode: models.CourseModeHybrid, ProgramID: "p1", TeacherID: "ghost",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestCourseServiceCreateStudentAsTeacherRejected(t *testing.T) {
	_, svc := newCourseFixture()

	_, err := svc.Create(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, CourseRequest{
		Name: "Chemistry", Semester: "2026-1", Credits: 3, Hours: 45,
		Mode: models.CourseModeHybrid, ProgramID: "p1", TeacherID: "s1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestCourseServiceCreateDeniedForInstructor(t *testing.T) {
	_, svc := newCourseFixture()

	_, err := svc.Create(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, CourseRequest{
		Name: "Chemistry", Semester: "2026-1", Credits: 3, Hours: 45,
		Mode: models.CourseModeHybrid, ProgramID: "p1", TeacherID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestCourseServiceExportRosterCSV(t *testing.T) {
	_, svc := newCourseFixture()

	payload, filename, err := svc.ExportRoster(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, "c1")
	require.NoError(t, err)
	assert.Equal(t, "roster-c1.csv", filename)
	content := string(payload)
	assert.True(t, strings.HasPrefix(content, "Name,Email"))
	assert.Contains(t, content, "Student One,s1@example.com")
}

func TestCourseServiceExportRosterOtherInstructorsCourse(t *testing.T) {
	_, svc := newCourseFixture()

	_, _, err := svc.ExportRoster(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, "c2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestCourseServiceExportRosterDeniedForStudent(t *testing.T) {
	_, svc := newCourseFixture()

	_, _, err := svc.ExportRoster(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}
