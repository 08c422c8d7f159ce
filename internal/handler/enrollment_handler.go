package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/service"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, actor service.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	ListOwn(ctx context.Context, actor service.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.EnrollmentDetail, error)
	Enroll(ctx context.Context, actor service.Actor, req service.EnrollRequest) (*models.Enrollment, error)
	Unenroll(ctx context.Context, actor service.Actor, studentID, courseID string) error
	UpdateGrades(ctx context.Context, actor service.Actor, req service.UpdateGradesRequest) ([]models.Grade, error)
}

// EnrollmentHandler exposes enrollment management and grade recording.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

func (h *EnrollmentHandler) filterFromQuery(c *gin.Context) models.EnrollmentFilter {
	page, size := pageParams(c)
	return models.EnrollmentFilter{
		Search:    c.Query("search"),
		StudentID: c.Query("student_id"),
		CourseID:  c.Query("course_id"),
		Page:      page,
		PageSize:  size,
	}
}

// List godoc
// @Summary List enrollments
// @Description List enrollments with their grades. Instructors only see their own courses.
// @Tags Enrollments
// @Produce json
// @Param search query string false "Search by student, course, teacher or program name"
// @Param course_id query string false "Filter by course"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollments, pagination, err := h.service.List(c.Request.Context(), actor, h.filterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// ListOwn godoc
// @Summary List own enrollments
// @Description List the authenticated student's enrollments with their grades.
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) ListOwn(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollments, pagination, err := h.service.ListOwn(c.Request.Context(), actor, h.filterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Enroll godoc
// @Summary Enroll student
// @Description Enroll a student in a course. Admin only. A student can be enrolled in a course at most once.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Unenroll godoc
// @Summary Unenroll student
// @Description Remove a student from a course. The enrollment's grades are removed as well.
// @Tags Enrollments
// @Produce json
// @Param student_id path string true "Student ID"
// @Param course_id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{student_id}/{course_id} [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Unenroll(c.Request.Context(), actor, c.Param("student_id"), c.Param("course_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EnrollInCourse godoc
// @Summary Enroll student in course
// @Description Course-scoped alias for enrollment creation. Admin only.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body handler.enrollStudentPayload true "Student reference"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/students [post]
func (h *EnrollmentHandler) EnrollInCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload enrollStudentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), actor, service.EnrollRequest{
		StudentID: payload.StudentID,
		CourseID:  c.Param("id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

type enrollStudentPayload struct {
	StudentID string `json:"student_id" binding:"required"`
}

// RemoveFromCourse godoc
// @Summary Remove student from course
// @Description Course-scoped alias for unenrollment. Admin only.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Param student_id path string true "Student ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/students/{student_id} [delete]
func (h *EnrollmentHandler) RemoveFromCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Unenroll(c.Request.Context(), actor, c.Param("student_id"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateGrades godoc
// @Summary Record grades
// @Description Replace the full grade set of an enrollment. Instructors may only grade their own courses.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.UpdateGradesRequest true "Grades payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades [put]
func (h *EnrollmentHandler) UpdateGrades(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grades payload"))
		return
	}
	grades, err := h.service.UpdateGrades(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}
