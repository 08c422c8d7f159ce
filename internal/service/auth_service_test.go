package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail  map[string][]*models.User
	usersByID     map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	createErr     error
	created       []*models.User
	revokedAll    []string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail:  make(map[string][]*models.User),
		usersByID:     make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) ListByEmail(ctx context.Context, email string) ([]models.User, error) {
	out := make([]models.User, 0, len(m.usersByEmail[email]))
	for _, u := range m.usersByEmail[email] {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Count(ctx context.Context) (int, error) {
	return len(m.usersByID), nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	m.usersByEmail[user.Email] = append(m.usersByEmail[user.Email], user)
	m.usersByID[user.ID] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "academic-records-api",
	})
}

func TestAuthServiceRegisterFirstUserBecomesAdmin(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	info, err := svc.Register(context.Background(), models.RegisterRequest{Name: "First", Email: "first@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, info.Role)

	info, err = svc.Register(context.Background(), models.RegisterRequest{Name: "Second", Email: "second@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, info.Role)
}

func TestAuthServiceRegisterDuplicate(t *testing.T) {
	repo := newMockAuthRepo()
	repo.createErr = &pq.Error{Code: "23505"}
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Dup", Email: "dup@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateUser.Code, errorCode(t, err))
}

func TestAuthServiceLoginAndValidate(t *testing.T) {
	repo := newMockAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Name: "User", Role: models.RoleStudent, Active: true}
	repo.usersByEmail[user.Email] = []*models.User{user}
	repo.usersByID[user.ID] = user
	svc := newAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleStudent, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Name: "User", Role: models.RoleStudent, Active: true}
	repo.usersByEmail[user.Email] = []*models.User{user}
	svc := newAuthService(repo)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCode(t, err))
}

func TestAuthServiceLoginSharedEmailAcrossRoles(t *testing.T) {
	repo := newMockAuthRepo()
	instructorHash, err := bcrypt.GenerateFromPassword([]byte("teach-pass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	studentHash, err := bcrypt.GenerateFromPassword([]byte("study-pass"), bcrypt.DefaultCost)
	require.NoError(t, err)

	instructor := &models.User{ID: "t1", Email: "shared@example.com", PasswordHash: string(instructorHash), Name: "Teacher", Role: models.RoleInstructor, Active: true}
	student := &models.User{ID: "s1", Email: "shared@example.com", PasswordHash: string(studentHash), Name: "Student", Role: models.RoleStudent, Active: true}
	repo.usersByEmail["shared@example.com"] = []*models.User{instructor, student}
	repo.usersByID["t1"] = instructor
	repo.usersByID["s1"] = student
	svc := newAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "shared@example.com", Password: "study-pass"})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.User.ID)
	assert.Equal(t, models.RoleStudent, resp.User.Role)

	resp, err = svc.Login(context.Background(), models.LoginRequest{Email: "shared@example.com", Password: "teach-pass"})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.User.ID)
	assert.Equal(t, models.RoleInstructor, resp.User.Role)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Name: "User", Role: models.RoleStudent, Active: true}
	repo.usersByEmail[user.Email] = []*models.User{user}
	repo.usersByID[user.ID] = user
	svc := newAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	used := repo.refreshTokens[login.RefreshToken]
	require.NotNil(t, used)
	assert.True(t, used.Revoked)
}
