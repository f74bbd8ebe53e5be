package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/course-request-api/internal/dto"
	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/internal/repository"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
	"github.com/campusops/course-request-api/pkg/jobs"
)

type exportJobRepoStub struct {
	jobs map[string]*models.ExportJob
}

func newExportJobRepoStub() *exportJobRepoStub {
	return &exportJobRepoStub{jobs: map[string]*models.ExportJob{}}
}

func (r *exportJobRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *exportJobRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *exportJobRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportJobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *exportJobRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (q *dispatcherStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newExportJobServiceForTest(t *testing.T) (*ExportJobService, *exportJobRepoStub, *dispatcherStub, *ExportService) {
	t.Helper()
	repo := newExportJobRepoStub()
	queue := &dispatcherStub{}
	history := &historyStub{requests: []models.Request{completedRequest("req-1", models.RequestStatusApproved)}}
	exporter, _ := newExportServiceForTest(t, history)
	svc := NewExportJobService(repo, queue, exporter, zap.NewNop(), ExportJobConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exporter
}

func TestExportJobServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV}, "staff-1")
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, queue.jobs, 1)
	require.Equal(t, resp.ID, queue.jobs[0].ID)
	require.Equal(t, "history_export", queue.jobs[0].Type)
	require.Equal(t, "staff-1", repo.jobs[resp.ID].CreatedBy)
}

func TestExportJobServiceCreateJobValidation(t *testing.T) {
	svc, _, _, _ := newExportJobServiceForTest(t)

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{Format: models.ExportFormat("xlsx")}, "staff-1")
	require.Error(t, err)

	_, err = svc.CreateJob(context.Background(), dto.ExportRequest{
		Format:   models.ExportFormatCSV,
		Statuses: []models.RequestStatus{models.RequestStatusPending},
	}, "staff-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)
	queue.err = context.DeadlineExceeded

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV}, "staff-1")
	require.Error(t, err)
	for _, job := range repo.jobs {
		require.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportJobServiceGetStatusOwnership(t *testing.T) {
	svc, repo, _, _ := newExportJobServiceForTest(t)
	job := &models.ExportJob{Status: models.ExportStatusProcessing, CreatedBy: "staff-1"}
	require.NoError(t, repo.Create(context.Background(), job))

	status, err := svc.GetStatus(context.Background(), job.ID, "staff-1", models.RoleStaff)
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusProcessing, status.Status)

	_, err = svc.GetStatus(context.Background(), job.ID, "staff-2", models.RoleStaff)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins can read any job.
	_, err = svc.GetStatus(context.Background(), job.ID, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
}

func TestExportWorkerFinishesJob(t *testing.T) {
	svc, repo, queue, exporter := newExportJobServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), dto.ExportRequest{Format: models.ExportFormatCSV}, "staff-1")
	require.NoError(t, err)

	worker := NewExportWorker(repo, exporter, 3, zap.NewNop())
	require.NoError(t, worker.Handle(context.Background(), queue.jobs[0]))

	job := repo.jobs[resp.ID]
	require.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultURL)
	require.NotNil(t, job.FinishedAt)

	// The stored URL resolves back to a readable file.
	token := extractToken(*job.ResultURL)
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	require.Equal(t, models.ExportFormatCSV, download.Format)
}

type failingGenerator struct {
	err error
}

func (g *failingGenerator) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return nil, g.err
}

func TestExportWorkerRetriesBeforeFailing(t *testing.T) {
	repo := newExportJobRepoStub()
	job := &models.ExportJob{Status: models.ExportStatusQueued, CreatedBy: "staff-1"}
	require.NoError(t, repo.Create(context.Background(), job))

	worker := NewExportWorker(repo, &failingGenerator{err: errors.New("render failed")}, 3, zap.NewNop())

	// First attempt goes back to the queue for a retry.
	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID, Type: "history_export", Attempt: 1})
	require.Error(t, err)
	require.Equal(t, models.ExportStatusQueued, repo.jobs[job.ID].Status)
	require.NotNil(t, repo.jobs[job.ID].ErrorMessage)

	// Exhausted attempts end the job permanently.
	err = worker.Handle(context.Background(), jobs.Job{ID: job.ID, Type: "history_export", Attempt: 3})
	require.Error(t, err)
	require.Equal(t, models.ExportStatusFailed, repo.jobs[job.ID].Status)
	require.NotNil(t, repo.jobs[job.ID].FinishedAt)
}

func TestExportJobServiceResolveDownloadGuards(t *testing.T) {
	svc, _, _, _ := newExportJobServiceForTest(t)

	_, err := svc.ResolveDownload(context.Background(), "garbage-token")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)
	job := &models.ExportJob{Status: models.ExportStatusQueued, CreatedBy: "staff-1"}
	require.NoError(t, repo.Create(context.Background(), job))

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 1)
	require.Equal(t, job.ID, queue.jobs[0].ID)
}
