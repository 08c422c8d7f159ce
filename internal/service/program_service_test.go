package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

func newProgramService(repo *mockProgramRepo) *ProgramService {
	return NewProgramService(repo, nil, validator.New(), zap.NewNop())
}

func TestProgramServiceListVisibleToStudents(t *testing.T) {
	repo := &mockProgramRepo{programs: map[string]models.Program{"p1": {ID: "p1", Name: "Mathematics"}}}
	svc := newProgramService(repo)

	programs, pagination, err := svc.List(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, models.ProgramFilter{})
	require.NoError(t, err)
	assert.Len(t, programs, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestProgramServiceCreateDeniedForInstructor(t *testing.T) {
	repo := &mockProgramRepo{}
	svc := newProgramService(repo)

	_, err := svc.Create(context.Background(), Actor{ID: "t1", Role: models.RoleInstructor}, ProgramRequest{Name: "Biology"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
	assert.Nil(t, repo.created)
}

func TestProgramServiceCreateAndRename(t *testing.T) {
	repo := &mockProgramRepo{}
	svc := newProgramService(repo)
	admin := Actor{ID: "a1", Role: models.RoleAdmin}

	program, err := svc.Create(context.Background(), admin, ProgramRequest{Name: "Biology"})
	require.NoError(t, err)
	require.NotNil(t, repo.created)

	renamed, err := svc.Update(context.Background(), admin, program.ID, ProgramRequest{Name: "Marine Biology"})
	require.NoError(t, err)
	assert.Equal(t, "Marine Biology", renamed.Name)
}

func TestProgramServiceDeleteMissing(t *testing.T) {
	repo := &mockProgramRepo{}
	svc := newProgramService(repo)

	err := svc.Delete(context.Background(), Actor{ID: "a1", Role: models.RoleAdmin}, "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}
