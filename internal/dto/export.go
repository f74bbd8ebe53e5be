package dto

import "github.com/campusops/course-request-api/internal/models"

// ExportRequest captures POST /exports/history payload.
type ExportRequest struct {
	Format   models.ExportFormat    `json:"format"`
	Statuses []models.RequestStatus `json:"statuses,omitempty"`
	College  string                 `json:"college,omitempty"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
