package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/policy"
	"github.com/noah-isme/academic-records-api/pkg/export"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/storage"
)

type reportEnrollmentRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type reportGradeRepository interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Grade, error)
}

type reportAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ReportResult describes a freshly rendered grade report and where to
// fetch it.
type ReportResult struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	DownloadToken string    `json:"download_token"`
	Average       float64   `json:"average"`
	Observation   string    `json:"observation"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File     *os.File
	Filename string
}

// ReportService renders grade report documents. Reports are rendered
// synchronously on request; nothing runs in the background.
type ReportService struct {
	enrollments reportEnrollmentRepository
	grades      reportGradeRepository
	audits      reportAuditRepository
	courses     enrollmentCourseRepository
	pdf         *export.PDFExporter
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(enrollments reportEnrollmentRepository, grades reportGradeRepository, audits reportAuditRepository, courses enrollmentCourseRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		enrollments: enrollments,
		grades:      grades,
		audits:      audits,
		courses:     courses,
		pdf:         export.NewPDFExporter(),
		store:       store,
		signer:      signer,
		metrics:     metrics,
		logger:      logger,
	}
}

// GenerateTranscript renders the grade report PDF for one enrollment and
// returns a signed download URL. An enrollment without grades is rejected
// before any rendering starts.
func (s *ReportService) GenerateTranscript(ctx context.Context, actor Actor, enrollmentID string) (*ReportResult, error) {
	decision := policy.For(actor.Role, actor.ID, policy.OpReportGenerate)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.authorize(ctx, actor, detail); err != nil {
		return nil, err
	}

	grades, err := s.grades.ListByEnrollment(ctx, detail.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	if len(grades) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoGradesToReport, "enrollment has no grades to report")
	}

	average := math.Round(models.AverageScore(grades)*100) / 100
	observation := models.Observation(average)

	scores := make([]float64, 0, len(grades))
	for _, g := range grades {
		scores = append(scores, g.Score)
	}
	payload, err := s.pdf.RenderTranscript(export.Transcript{
		StudentName: detail.StudentName,
		CourseName:  detail.CourseName,
		ProgramName: detail.ProgramName,
		TeacherName: detail.TeacherName,
		Scores:      scores,
		Average:     average,
		Observation: observation,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.metrics.RecordReportRendered()

	reportID := uuid.NewString()
	filename := fmt.Sprintf("transcript-%s-%s.pdf", detail.ID, time.Now().UTC().Format("20060102T150405"))
	if _, err := s.store.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}

	token, expiresAt, err := s.signer.Generate(reportID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign report url")
	}

	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionReportGenerate,
		Resource:   "report",
		ResourceID: &reportID,
		NewValues:  []byte(fmt.Sprintf(`{"enrollment_id":%q}`, detail.ID)),
	}); err != nil {
		s.logger.Warn("failed to record report audit log", zap.Error(err))
	}

	return &ReportResult{
		ID:            reportID,
		Filename:      filename,
		DownloadToken: token,
		Average:       average,
		Observation:   observation,
		ExpiresAt:     expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the stored document.
func (s *ReportService) ResolveDownload(token string) (*ReportDownload, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report")
	}
	return &ReportDownload{File: file, Filename: relPath}, nil
}

func (s *ReportService) authorize(ctx context.Context, actor Actor, detail *models.EnrollmentDetail) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStudent:
		if detail.StudentID == actor.ID {
			return nil
		}
	case models.RoleInstructor:
		course, err := s.courses.FindByID(ctx, detail.CourseID)
		if err == nil && course.TeacherID == actor.ID {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "report belongs to another student")
}
