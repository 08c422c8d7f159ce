package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// GradeRepository handles persistence of unit grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListByEnrollment returns the grades of one enrollment ordered by unit.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Grade, error) {
	const query = `SELECT id, enrollment_id, unit, score, created_at, updated_at FROM grades WHERE enrollment_id = $1 ORDER BY unit ASC`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// ReplaceForEnrollment swaps the full grade set of an enrollment inside one
// transaction. Readers never observe a partially written set.
func (r *GradeRepository) ReplaceForEnrollment(ctx context.Context, enrollmentID string, grades []models.Grade) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace grades: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM grades WHERE enrollment_id = $1`, enrollmentID); err != nil {
		return fmt.Errorf("clear grades: %w", err)
	}

	const insert = `INSERT INTO grades (id, enrollment_id, unit, score, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	now := time.Now().UTC()
	for i := range grades {
		g := &grades[i]
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		g.EnrollmentID = enrollmentID
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		g.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, insert, g.ID, g.EnrollmentID, g.Unit, g.Score, g.CreatedAt, g.UpdatedAt); err != nil {
			return fmt.Errorf("insert grade unit %d: %w", g.Unit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace grades: %w", err)
	}
	commit = true
	return nil
}
