package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	byPair      map[string]models.Enrollment
	created     *models.Enrollment
	deleted     []string
	createErr   error
	listed      []models.EnrollmentDetail
}

func pairKey(studentID, courseID string) string { return studentID + "|" + courseID }

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return m.listed, len(m.listed), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByPair(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if e, ok := m.byPair[pairKey(studentID, courseID)]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockGradeRepo struct {
	grades   map[string][]models.Grade
	replaced int
}

func (m *mockGradeRepo) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Grade, error) {
	return m.grades[enrollmentID], nil
}

func (m *mockGradeRepo) ReplaceForEnrollment(ctx context.Context, enrollmentID string, grades []models.Grade) error {
	if m.grades == nil {
		m.grades = make(map[string][]models.Grade)
	}
	m.grades[enrollmentID] = grades
	m.replaced++
	return nil
}

type mockUserReader struct {
	users map[string]models.UserRole
}

func (m *mockUserReader) FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	if r, ok := m.users[id]; ok && r == role {
		return &models.User{ID: id, Role: r, Active: true}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserReader) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

type mockCourseReader struct {
	courses map[string]models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentFixture() (*mockEnrollmentRepo, *mockGradeRepo, *mockUserReader, *mockCourseReader, *EnrollmentService) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{"e1": {ID: "e1", StudentID: "s1", CourseID: "c1"}},
		byPair:      map[string]models.Enrollment{pairKey("s1", "c1"): {ID: "e1", StudentID: "s1", CourseID: "c1"}},
	}
	grades := &mockGradeRepo{grades: map[string][]models.Grade{"e1": {{ID: "g1", EnrollmentID: "e1", Unit: 1, Score: 10}}}}
	users := &mockUserReader{users: map[string]models.UserRole{"s1": models.RoleStudent, "t1": models.RoleInstructor}}
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1", TeacherID: "t1"}}}
	svc := NewEnrollmentService(repo, grades, users, courses, nil, validator.New(), zap.NewNop())
	return repo, grades, users, courses, svc
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo, _, _, _, svc := newEnrollmentFixture()
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	enrollment, err := svc.Enroll(context.Background(), admin, EnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.NotNil(t, repo.created)
	assert.Equal(t, "s1", enrollment.StudentID)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	repo, _, _, _, svc := newEnrollmentFixture()
	repo.createErr = &pq.Error{Code: "23505"}
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	_, err := svc.Enroll(context.Background(), admin, EnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, errorCode(t, err))
}

func TestEnrollmentServiceEnrollDeniedForInstructor(t *testing.T) {
	_, _, _, _, svc := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, EnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestEnrollmentServiceUnenrollNotEnrolled(t *testing.T) {
	_, _, _, _, svc := newEnrollmentFixture()
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	err := svc.Unenroll(context.Background(), admin, "s1", "other-course")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, errorCode(t, err))
}

func TestEnrollmentServiceUpdateGradesReplacesFullSet(t *testing.T) {
	_, grades, _, _, svc := newEnrollmentFixture()
	instructor := Actor{ID: "t1", Role: models.RoleInstructor}

	result, err := svc.UpdateGrades(context.Background(), instructor, UpdateGradesRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Grades:    []GradeInput{{Unit: 1, Score: 12}, {Unit: 2, Score: 15}, {Unit: 3, Score: 9}},
	})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, 1, grades.replaced)
	assert.Len(t, grades.grades["e1"], 3)
}

func TestEnrollmentServiceUpdateGradesInvalidUnitLeavesGradesUntouched(t *testing.T) {
	_, grades, _, _, svc := newEnrollmentFixture()
	instructor := Actor{ID: "t1", Role: models.RoleInstructor}

	_, err := svc.UpdateGrades(context.Background(), instructor, UpdateGradesRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Grades:    []GradeInput{{Unit: 4, Score: 12}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidUnit.Code, errorCode(t, err))
	assert.Equal(t, 0, grades.replaced)
	assert.Len(t, grades.grades["e1"], 1)
}

func TestEnrollmentServiceUpdateGradesInvalidScoreLeavesGradesUntouched(t *testing.T) {
	_, grades, _, _, svc := newEnrollmentFixture()
	instructor := Actor{ID: "t1", Role: models.RoleInstructor}

	_, err := svc.UpdateGrades(context.Background(), instructor, UpdateGradesRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Grades:    []GradeInput{{Unit: 1, Score: 25}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidScore.Code, errorCode(t, err))
	assert.Equal(t, 0, grades.replaced)
}

func TestEnrollmentServiceUpdateGradesDeniedForStudent(t *testing.T) {
	_, grades, _, _, svc := newEnrollmentFixture()

	_, err := svc.UpdateGrades(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, UpdateGradesRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Grades:    []GradeInput{{Unit: 1, Score: 10}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
	assert.Equal(t, 0, grades.replaced)
}

func TestEnrollmentServiceUpdateGradesOtherInstructorsCourse(t *testing.T) {
	_, _, _, courses, svc := newEnrollmentFixture()
	courses.courses["c1"] = models.Course{ID: "c1", TeacherID: "someone-else"}

	_, err := svc.UpdateGrades(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, UpdateGradesRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Grades:    []GradeInput{{Unit: 1, Score: 10}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestEnrollmentServiceUpdateGradesUnknownStudent(t *testing.T) {
	_, _, _, _, svc := newEnrollmentFixture()
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	_, err := svc.UpdateGrades(context.Background(), admin, UpdateGradesRequest{
		StudentID: "ghost",
		CourseID:  "c1",
		Grades:    []GradeInput{{Unit: 1, Score: 10}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestEnrollmentServiceListOwnScopesToStudent(t *testing.T) {
	repo, _, _, _, svc := newEnrollmentFixture()
	repo.listed = []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1"}}}

	enrollments, pagination, err := svc.ListOwn(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, models.EnrollmentFilter{})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	require.Len(t, enrollments[0].Grades, 1)
}

func TestEnrollmentServiceListDeniedForStudent(t *testing.T) {
	_, _, _, _, svc := newEnrollmentFixture()

	_, _, err := svc.List(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, models.EnrollmentFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}
