package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/service"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type reportServiceMock struct {
	result      *service.ReportResult
	generateErr error
	download    *service.ReportDownload
	downloadErr error
}

func (m *reportServiceMock) GenerateTranscript(ctx context.Context, actor service.Actor, enrollmentID string) (*service.ReportResult, error) {
	return m.result, m.generateErr
}

func (m *reportServiceMock) ResolveDownload(token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func TestReportHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		result: &service.ReportResult{
			ID:            "r1",
			Filename:      "transcript-e1.pdf",
			DownloadToken: "token",
			Average:       12.0,
			Observation:   models.ObservationApproved,
			ExpiresAt:     time.Now().Add(time.Hour),
		},
	}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/reports/enrollments/e1", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	h.Generate(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data service.ReportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "token", envelope.Data.DownloadToken)
}

func TestReportHandlerGenerateNoGrades(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{generateErr: appErrors.ErrNoGradesToReport}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/reports/enrollments/e1", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	h.Generate(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestReportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "transcript*.pdf")
	require.NoError(t, err)
	_, _ = file.WriteString("%PDF-1.4")
	_, _ = file.Seek(0, 0)

	mockSvc := &reportServiceMock{
		download: &service.ReportDownload{File: file, Filename: "transcript.pdf"},
	}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/download/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "transcript.pdf")
	require.Equal(t, "%PDF-1.4", w.Body.String())
}

func TestReportHandlerDownloadExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{downloadErr: appErrors.ErrUnauthorized}
	h := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/download/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	h.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
