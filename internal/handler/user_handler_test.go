package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/service"
	"github.com/noah-isme/academic-records-api/pkg/storage"
)

type userRepoStub struct {
	users map[string]*models.User
}

func (r *userRepoStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (r *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *userRepoStub) FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	if u, ok := r.users[id]; ok && u.Role == role {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *userRepoStub) Create(ctx context.Context, user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *userRepoStub) Update(ctx context.Context, user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *userRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.users, id)
	return nil
}

func (r *userRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func newAvatarContext(t *testing.T, field, filename string, content []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/users/me/avatar", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.Request = req
	return c, w
}

func newUserHandlerFixture(t *testing.T, maxBytes int64) (*UserHandler, *userRepoStub, *storage.LocalStorage) {
	t.Helper()
	repo := &userRepoStub{users: map[string]*models.User{
		"s1": {ID: "s1", Email: "student@example.com", Name: "Student", Role: models.RoleStudent, Active: true},
	}}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewUserHandler(service.NewUserService(repo, nil, nil), store, maxBytes), repo, store
}

func TestUserHandlerUploadAvatar(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, repo, store := newUserHandlerFixture(t, 1<<20)

	c, w := newAvatarContext(t, "avatar", "me.png", []byte("fake-png"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	h.UploadAvatar(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data.Image)
	assert.Equal(t, "avatars/s1.png", *envelope.Data.Image)

	stored, err := store.Open("avatars/s1.png")
	require.NoError(t, err)
	defer stored.Close()

	require.NotNil(t, repo.users["s1"].Image)
	assert.Equal(t, "avatars/s1.png", *repo.users["s1"].Image)
}

func TestUserHandlerUploadAvatarReplacesPrevious(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, repo, store := newUserHandlerFixture(t, 1<<20)
	_, err := store.Save("avatars/s1.jpg", []byte("old"))
	require.NoError(t, err)
	old := "avatars/s1.jpg"
	repo.users["s1"].Image = &old

	c, w := newAvatarContext(t, "avatar", "new.png", []byte("new"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	h.UploadAvatar(c)

	require.Equal(t, http.StatusOK, w.Code)
	_, err = store.Open("avatars/s1.jpg")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUserHandlerUploadAvatarTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _ := newUserHandlerFixture(t, 4)

	c, w := newAvatarContext(t, "avatar", "big.png", []byte("five5"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	h.UploadAvatar(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandlerUploadAvatarUnsupportedFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _ := newUserHandlerFixture(t, 1<<20)

	c, w := newAvatarContext(t, "avatar", "script.sh", []byte("#!/bin/sh"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	h.UploadAvatar(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
