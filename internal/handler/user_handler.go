package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/service"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
	"github.com/noah-isme/academic-records-api/pkg/storage"
)

// UserHandler wires HTTP endpoints to the user service. Students,
// teachers and admins share the same storage; the routes expose them as
// separate role-scoped collections.
type UserHandler struct {
	service        *service.UserService
	avatars        *storage.LocalStorage
	maxAvatarBytes int64
}

// NewUserHandler creates a new handler. Uploaded avatars land in the
// given store, capped at maxAvatarBytes per file.
func NewUserHandler(svc *service.UserService, avatars *storage.LocalStorage, maxAvatarBytes int64) *UserHandler {
	return &UserHandler{service: svc, avatars: avatars, maxAvatarBytes: maxAvatarBytes}
}

func (h *UserHandler) listByRole(c *gin.Context, role models.UserRole) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, size := pageParams(c)
	filter := models.UserFilter{Search: c.Query("search"), Page: page, PageSize: size}

	users, pagination, err := h.service.ListByRole(c.Request.Context(), actor, role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

func (h *UserHandler) getByRole(c *gin.Context, role models.UserRole) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user, err := h.service.GetByRole(c.Request.Context(), actor, role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ListStudents godoc
// @Summary List students
// @Description List students. Instructors only see students enrolled in their courses.
// @Tags Users
// @Produce json
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students [get]
func (h *UserHandler) ListStudents(c *gin.Context) { h.listByRole(c, models.RoleStudent) }

// GetStudent godoc
// @Summary Get student
// @Tags Users
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *UserHandler) GetStudent(c *gin.Context) { h.getByRole(c, models.RoleStudent) }

// ListTeachers godoc
// @Summary List teachers
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers [get]
func (h *UserHandler) ListTeachers(c *gin.Context) { h.listByRole(c, models.RoleInstructor) }

// GetTeacher godoc
// @Summary Get teacher
// @Tags Users
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *UserHandler) GetTeacher(c *gin.Context) { h.getByRole(c, models.RoleInstructor) }

// ListAdmins godoc
// @Summary List administrators
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admins [get]
func (h *UserHandler) ListAdmins(c *gin.Context) { h.listByRole(c, models.RoleAdmin) }

// GetAdmin godoc
// @Summary Get administrator
// @Tags Users
// @Produce json
// @Param id path string true "Admin ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admins/{id} [get]
func (h *UserHandler) GetAdmin(c *gin.Context) { h.getByRole(c, models.RoleAdmin) }

// Create godoc
// @Summary Create user
// @Description Create a user with an explicit role. Admin only.
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body service.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}
	user, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update user
// @Description Update a user's mutable fields. The role is immutable.
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.UpdateUserRequest true "User payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}
	user, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Delete user
// @Description Delete a user. Administrators cannot delete their own account.
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CompleteProfile godoc
// @Summary Complete own profile
// @Description Fill in display name and avatar for the authenticated user.
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body service.CompleteProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/me/profile [put]
func (h *UserHandler) CompleteProfile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CompleteProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}
	user, err := h.service.CompleteProfile(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// UploadAvatar godoc
// @Summary Upload own avatar
// @Description Store an avatar image for the authenticated user. Replaces any previous upload.
// @Tags Users
// @Accept multipart/form-data
// @Produce json
// @Param avatar formData file true "Avatar image (png, jpg, jpeg or webp)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/me/avatar [post]
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "avatar file required"))
		return
	}
	if h.maxAvatarBytes > 0 && file.Size > h.maxAvatarBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("avatar exceeds the %d byte limit", h.maxAvatarBytes)))
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported avatar format"))
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read avatar"))
		return
	}
	defer src.Close() //nolint:errcheck

	filename := fmt.Sprintf("avatars/%s%s", actor.ID, ext)
	if _, err := h.avatars.SaveStream(filename, src); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store avatar"))
		return
	}

	user, previous, err := h.service.UpdateAvatar(c.Request.Context(), actor, filename)
	if err != nil {
		response.Error(c, err)
		return
	}
	if previous != "" && previous != filename {
		_ = h.avatars.Delete(previous)
	}
	response.JSON(c, http.StatusOK, user, nil)
}
