package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/pkg/export"
	"github.com/campusops/course-request-api/pkg/storage"
)

type historyLister interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	BatchSize int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders completed-request history into CSV or PDF files and
// persists them behind signed download tokens.
type ExportService struct {
	requests historyLister
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(requests historyLister, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests: requests,
		storage:  storage,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the history dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/exports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("history/request_history_%s.%s", timestamp, job.Params.Format)
}

var historyHeaders = []string{
	"ID Number", "Last Name", "First Name", "College", "Program",
	"Request Type", "Status", "Remarks", "Submitted At", "Completed At",
}

func (s *ExportService) buildDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = models.TerminalStatuses
	}

	rows := make([]map[string]string, 0, s.cfg.BatchSize)
	offset := 0
	for {
		batch, err := s.requests.List(ctx, models.RequestFilter{
			Statuses: statuses,
			College:  params.College,
			Limit:    s.cfg.BatchSize,
			Offset:   offset,
			OrderBy:  models.OrderCompletedDesc,
		})
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, req := range batch {
			if params.From != nil && req.CompletedAt != nil && req.CompletedAt.Before(*params.From) {
				continue
			}
			if params.To != nil && req.CompletedAt != nil && req.CompletedAt.After(*params.To) {
				continue
			}
			rows = append(rows, map[string]string{
				"ID Number":    req.IDNumber,
				"Last Name":    req.LastName,
				"First Name":   req.FirstName,
				"College":      req.College,
				"Program":      req.Program,
				"Request Type": string(req.RequestType),
				"Status":       string(req.Status),
				"Remarks":      derefString(req.Remarks),
				"Submitted At": req.CreatedAt.UTC().Format(time.RFC3339),
				"Completed At": formatExportTime(req.CompletedAt),
			})
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
		offset += s.cfg.BatchSize
	}

	dataset := export.Dataset{Headers: historyHeaders, Rows: rows}
	title := "Request History"
	if params.College != "" {
		title = fmt.Sprintf("Request History - %s", params.College)
	}
	return dataset, title, nil
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
