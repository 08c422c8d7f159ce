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
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	Delete(ctx context.Context, id string) error
}

// ProgramRequest holds payload for creating or renaming a program.
type ProgramRequest struct {
	Name string `json:"name" validate:"required"`
}

// ProgramService handles study program use cases. Listings are cached
// because the program catalog changes rarely and every role reads it.
type ProgramService struct {
	repo      programRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

type cachedProgramList struct {
	Programs []models.ProgramDetail `json:"programs"`
	Total    int                    `json:"total"`
}

// NewProgramService constructs the program service.
func NewProgramService(repo programRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns all programs with course counts. Visible to every role.
func (s *ProgramService) List(ctx context.Context, actor Actor, filter models.ProgramFilter) ([]models.ProgramDetail, *models.Pagination, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpProgramList)
	if !decision.Allowed {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	cacheKey := fmt.Sprintf("programs:list:%s:%d:%d", filter.Search, page, size)
	var cached cachedProgramList
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached.Programs, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, nil
	}

	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}

	if err := s.cache.Set(ctx, cacheKey, cachedProgramList{Programs: programs, Total: total}, 0); err != nil {
		s.logger.Warn("failed to cache program list", zap.Error(err))
	}

	return programs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one program.
func (s *ProgramService) Get(ctx context.Context, actor Actor, id string) (*models.Program, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpProgramGet)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}

// Create registers a new program.
func (s *ProgramService) Create(ctx context.Context, actor Actor, req ProgramRequest) (*models.Program, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpProgramManage)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	program := &models.Program{Name: req.Name}
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	s.invalidateCatalog(ctx)
	return program, nil
}

// Update renames a program.
func (s *ProgramService) Update(ctx context.Context, actor Actor, id string, req ProgramRequest) (*models.Program, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpProgramManage)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	program.Name = req.Name
	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}
	s.invalidateCatalog(ctx)
	return program, nil
}

// Delete removes a program. Its courses, their enrollments and grades are
// removed by the database cascade.
func (s *ProgramService) Delete(ctx context.Context, actor Actor, id string) error {
	decision := policy.For(actor.Role, actor.ID, policy.OpProgramManage)
	if !decision.Allowed {
		return appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *ProgramService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "programs:*"); err != nil {
		s.logger.Warn("failed to invalidate program cache", zap.Error(err))
	}
}
