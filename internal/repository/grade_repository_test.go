package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
)

func newGradeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGradeRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "unit", "score", "created_at", "updated_at"}).
		AddRow("g1", "enr-1", 1, 12.0, now, now).
		AddRow("g2", "enr-1", 2, 15.0, now, now).
		AddRow("g3", "enr-1", 3, 9.0, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, enrollment_id, unit, score, created_at, updated_at FROM grades WHERE enrollment_id = $1 ORDER BY unit ASC")).
		WithArgs("enr-1").
		WillReturnRows(rows)

	grades, err := repo.ListByEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, grades, 3)
	assert.Equal(t, 2, grades[1].Unit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryReplaceForEnrollment(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grades WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO grades").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	grades := []models.Grade{
		{Unit: 1, Score: 12},
		{Unit: 2, Score: 15},
		{Unit: 3, Score: 9},
	}
	err := repo.ReplaceForEnrollment(context.Background(), "enr-1", grades)
	require.NoError(t, err)
	for _, g := range grades {
		assert.Equal(t, "enr-1", g.EnrollmentID)
		assert.NotEmpty(t, g.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grades WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO grades").WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := repo.ReplaceForEnrollment(context.Background(), "enr-1", []models.Grade{{Unit: 1, Score: 10}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
