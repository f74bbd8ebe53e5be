package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/pkg/export"
	"github.com/campusops/course-request-api/pkg/storage"
)

type historyStub struct {
	requests []models.Request
	filter   models.RequestFilter
}

func (h *historyStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	h.filter = filter
	if filter.Offset >= len(h.requests) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(h.requests) {
		end = len(h.requests)
	}
	return h.requests[filter.Offset:end], nil
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func completedRequest(id string, status models.RequestStatus) models.Request {
	completed := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	remarks := "Course full"
	return models.Request{
		ID:          id,
		UserID:      "student-1",
		RequestType: models.RequestTypeAdd,
		Status:      status,
		Remarks:     &remarks,
		IDNumber:    "2021-00123",
		College:     "CCS",
		Program:     "BSCS",
		LastName:    "Reyes",
		FirstName:   "Ana",
		CreatedAt:   completed.Add(-48 * time.Hour),
		CompletedAt: ptrTime(completed),
	}
}

func newExportServiceForTest(t *testing.T, history *historyStub) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api", ResultTTL: time.Hour, BatchSize: 100}
	svc := NewExportService(history, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateCSV(t *testing.T) {
	history := &historyStub{requests: []models.Request{
		completedRequest("req-1", models.RequestStatusRejected),
		completedRequest("req-2", models.RequestStatusApproved),
	}}
	svc, _ := newExportServiceForTest(t, history)

	job := &models.ExportJob{
		ID:        "job-1",
		Params:    models.ExportJobParams{Format: models.ExportFormatCSV},
		CreatedBy: "staff-1",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatCSV, result.Format)
	require.Contains(t, result.URL, "/api/exports/download/")
	require.Equal(t, models.TerminalStatuses, history.filter.Statuses)
	require.Equal(t, models.OrderCompletedDesc, history.filter.OrderBy)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	raw, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	body := string(raw)
	require.Contains(t, body, "ID Number")
	require.Contains(t, body, "2021-00123")
	require.Contains(t, body, "Course full")
	require.True(t, strings.HasPrefix(result.RelativePath, "history/"))
}

func TestExportServiceGeneratePDF(t *testing.T) {
	history := &historyStub{requests: []models.Request{completedRequest("req-1", models.RequestStatusApproved)}}
	svc, _ := newExportServiceForTest(t, history)

	job := &models.ExportJob{
		ID:     "job-2",
		Params: models.ExportJobParams{Format: models.ExportFormatPDF, College: "CCS"},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatPDF, result.Format)
	require.Equal(t, "CCS", history.filter.College)
}

func TestExportServiceTokenRoundTrip(t *testing.T) {
	history := &historyStub{requests: []models.Request{completedRequest("req-1", models.RequestStatusApproved)}}
	svc, _ := newExportServiceForTest(t, history)

	job := &models.ExportJob{ID: "job-3", Params: models.ExportJobParams{Format: models.ExportFormatCSV}}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	jobID, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	require.Equal(t, "job-3", jobID)
	require.Equal(t, result.RelativePath, relPath)
	require.True(t, expiresAt.After(time.Now()))
}

func TestExportServiceUnsupportedFormat(t *testing.T) {
	history := &historyStub{}
	svc, _ := newExportServiceForTest(t, history)

	job := &models.ExportJob{ID: "job-4", Params: models.ExportJobParams{Format: models.ExportFormat("xlsx")}}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
