package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusops/course-request-api/internal/dto"
	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/internal/repository"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
)

type requestRepoStub struct {
	requests map[string]*models.Request
	items    map[string][]models.RequestItem
	inFlight map[models.RequestType]int
	filter   models.RequestFilter
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{
		requests: make(map[string]*models.Request),
		items:    make(map[string][]models.RequestItem),
		inFlight: make(map[models.RequestType]int),
	}
}

func (r *requestRepoStub) Create(ctx context.Context, request *models.Request, items []models.RequestItem) error {
	r.requests[request.ID] = request
	r.items[request.ID] = items
	r.inFlight[request.RequestType]++
	return nil
}

func (r *requestRepoStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	if req, ok := r.requests[id]; ok {
		copy := *req
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *requestRepoStub) GetItems(ctx context.Context, requestID string) ([]models.RequestItem, error) {
	return r.items[requestID], nil
}

func (r *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	r.filter = filter
	result := make([]models.Request, 0, len(r.requests))
	for _, req := range r.requests {
		result = append(result, *req)
	}
	return result, nil
}

func (r *requestRepoStub) CountInFlight(ctx context.Context, userID string, requestType models.RequestType, excludeID string) (int, error) {
	count := 0
	for _, req := range r.requests {
		if req.ID == excludeID {
			continue
		}
		if req.UserID == userID && req.RequestType == requestType && req.Status.InFlight() {
			count++
		}
	}
	return count, nil
}

func (r *requestRepoStub) InFlightTypes(ctx context.Context, userID string) ([]models.RequestType, error) {
	seen := make(map[models.RequestType]bool)
	var types []models.RequestType
	for _, req := range r.requests {
		if req.UserID == userID && req.Status.InFlight() && !seen[req.RequestType] {
			seen[req.RequestType] = true
			types = append(types, req.RequestType)
		}
	}
	return types, nil
}

func (r *requestRepoStub) MarkProcessing(ctx context.Context, id string, processedAt time.Time) error {
	req, ok := r.requests[id]
	if !ok || req.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	req.Status = models.RequestStatusProcessing
	req.ProcessedAt = &processedAt
	return nil
}

func (r *requestRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := r.requests[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.requests, id)
	delete(r.items, id)
	return nil
}

func (r *requestRepoStub) UpdatePending(ctx context.Context, request *models.Request, items []models.RequestItem) error {
	existing, ok := r.requests[request.ID]
	if !ok || existing.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	existing.RequestType = request.RequestType
	existing.RequestData = request.RequestData
	r.items[request.ID] = items
	return nil
}

func (r *requestRepoStub) UpdateFlag(ctx context.Context, id string, flagged bool) error {
	req, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.IsFlagged = flagged
	return nil
}

func (r *requestRepoStub) FinalizeDecisions(ctx context.Context, id string, status models.RequestStatus, remarks *string, completedAt time.Time, items []repository.ItemResolution, allowedFrom []models.RequestStatus) error {
	req, ok := r.requests[id]
	if !ok || !statusIn(req.Status, allowedFrom) {
		return sql.ErrNoRows
	}
	req.Status = status
	req.Remarks = remarks
	req.CompletedAt = &completedAt
	return nil
}

type profileStub struct {
	users map[string]*models.User
}

func (p *profileStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := p.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type auditTrailStub struct {
	logs []*models.AuditLog
}

func (a *auditTrailStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestRequestService(repo *requestRepoStub) (*RequestService, *auditTrailStub) {
	audit := &auditTrailStub{}
	users := &profileStub{users: map[string]*models.User{
		"student-1": {
			ID:        "student-1",
			IDNumber:  "2021-00123",
			College:   "CCS",
			Program:   "BSCS",
			LastName:  "Reyes",
			FirstName: "Ana",
			Email:     "ana@example.edu",
		},
	}}
	return NewRequestService(repo, users, audit, nil), audit
}

func addPayload() dto.SubmitRequest {
	return dto.SubmitRequest{
		RequestType: models.RequestTypeAdd,
		Data: models.RequestData{
			Reason: "Underload",
			Courses: []models.Course{
				{CourseCode: "CS101", DescriptiveTitle: "Intro to Computing", SectionCode: "A", Time: "08:00-09:30", Day: "MW"},
			},
		},
	}
}

func TestRequestServiceSubmit(t *testing.T) {
	repo := newRequestRepoStub()
	svc, audit := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.Equal(t, "2021-00123", request.IDNumber)
	require.Equal(t, "Reyes", request.LastName)
	require.Len(t, repo.items[request.ID], 1)
	require.Equal(t, models.ItemActionAdd, repo.items[request.ID][0].Action)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionRequestSubmit, audit.logs[0].Action)
}

func TestRequestServiceDuplicateGuard(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	_, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "student-1", addPayload())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDuplicateActiveRequest.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceDuplicateGuardPerType(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	_, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	drop := dto.SubmitRequest{
		RequestType: models.RequestTypeDrop,
		Data: models.RequestData{
			Reason:  "Overload",
			Courses: []models.Course{{CourseCode: "CS102", SectionCode: "B"}},
		},
	}
	_, err = svc.Submit(context.Background(), "student-1", drop)
	require.NoError(t, err)
}

func TestRequestServiceSubmitInvalidPayload(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	_, err := svc.Submit(context.Background(), "student-1", dto.SubmitRequest{
		RequestType: models.RequestTypeAdd,
		Data:        models.RequestData{Reason: "Underload"},
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceSubmitBatchSkipsBlockedTypes(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	_, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	batch := dto.SubmitBatchRequest{Requests: []dto.SubmitRequest{
		addPayload(),
		{
			RequestType: models.RequestTypeDrop,
			Data: models.RequestData{
				Reason:  "Overload",
				Courses: []models.Course{{CourseCode: "CS103", SectionCode: "C"}},
			},
		},
	}}
	result, err := svc.SubmitBatch(context.Background(), "student-1", batch)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Equal(t, models.RequestTypeDrop, result.Created[0].RequestType)
	require.Equal(t, []models.RequestType{models.RequestTypeAdd}, result.Skipped)
}

func TestRequestServiceSubmitBatchSkipsIntraBatchDuplicates(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	batch := dto.SubmitBatchRequest{Requests: []dto.SubmitRequest{addPayload(), addPayload()}}
	result, err := svc.SubmitBatch(context.Background(), "student-1", batch)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Equal(t, []models.RequestType{models.RequestTypeAdd}, result.Skipped)
}

func TestRequestServiceStartProcessing(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	updated, err := svc.StartProcessing(context.Background(), request.ID, "staff-1")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusProcessing, updated.Status)
	require.NotNil(t, updated.ProcessedAt)

	_, err = svc.StartProcessing(context.Background(), request.ID, "staff-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidStateTransition.Code, appErrors.FromError(err).Code)

	_, err = svc.StartProcessing(context.Background(), "missing", "staff-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCancelGuards(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), request.ID, "someone-else")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.StartProcessing(context.Background(), request.ID, "staff-1")
	require.NoError(t, err)
	err = svc.Cancel(context.Background(), request.ID, "student-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidStateTransition.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCancelPending(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), request.ID, "student-1"))
	_, err = svc.Get(context.Background(), request.ID)
	require.Error(t, err)
}

func TestRequestServiceUpdateKeepsSlotAndReruns(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)
	created := repo.requests[request.ID].CreatedAt

	drop := dto.SubmitRequest{
		RequestType: models.RequestTypeDrop,
		Data: models.RequestData{
			Reason:  "Overload",
			Courses: []models.Course{{CourseCode: "CS102", SectionCode: "B"}},
		},
	}
	_, err = svc.Submit(context.Background(), "student-1", drop)
	require.NoError(t, err)

	// Switching the first request to drop would collide with the second.
	_, err = svc.Update(context.Background(), request.ID, "student-1", dto.UpdateRequestPayload{
		RequestType: models.RequestTypeDrop,
		Data:        drop.Data,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDuplicateActiveRequest.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), request.ID, "student-1", dto.UpdateRequestPayload{
		RequestType: models.RequestTypeAdd,
		Data: models.RequestData{
			Reason:  "Underload",
			Courses: []models.Course{{CourseCode: "CS104", SectionCode: "D"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "CS104", updated.RequestData.Courses[0].CourseCode)
	require.Equal(t, created, repo.requests[request.ID].CreatedAt)
}

func TestRequestServiceFinalizeLifecycle(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	itemID := repo.items[request.ID][0].ID
	payload := dto.FinalizeRequestPayload{Decisions: []dto.ItemDecisionPayload{
		{ItemID: itemID, Status: models.ItemStatusApproved},
	}}

	// Finalizing straight from pending is refused.
	_, err = svc.Finalize(context.Background(), request.ID, "staff-1", payload)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidStateTransition.Code, appErrors.FromError(err).Code)

	_, err = svc.StartProcessing(context.Background(), request.ID, "staff-1")
	require.NoError(t, err)

	finalized, err := svc.Finalize(context.Background(), request.ID, "staff-1", payload)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, finalized.Status)
	require.NotNil(t, finalized.CompletedAt)
	require.Equal(t, models.ItemStatusApproved, finalized.Items[0].Status)

	// A second Finalize is refused; ReFinalize is the amendment path.
	_, err = svc.Finalize(context.Background(), request.ID, "staff-1", payload)
	require.Error(t, err)

	amended, err := svc.ReFinalize(context.Background(), request.ID, "staff-1", dto.FinalizeRequestPayload{
		Decisions: []dto.ItemDecisionPayload{
			{ItemID: itemID, Status: models.ItemStatusRejected, Reason: "Course full"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, amended.Status)
	require.Equal(t, "Course full", *amended.Items[0].Remarks)
}

func TestRequestServiceFlagDoesNotTouchStatus(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	require.NoError(t, svc.UpdateFlag(context.Background(), request.ID, "staff-1", true))
	require.True(t, repo.requests[request.ID].IsFlagged)
	require.Equal(t, models.RequestStatusPending, repo.requests[request.ID].Status)
}

func TestRequestServiceGetForActorOwnership(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), "student-1", addPayload())
	require.NoError(t, err)

	_, err = svc.GetForActor(context.Background(), request.ID, &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.GetForActor(context.Background(), request.ID, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
	require.NoError(t, err)
	require.Equal(t, request.ID, got.ID)
}

func TestRequestServiceQueueFilters(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	_, err := svc.ListQueue(context.Background(), dto.RequestQuery{})
	require.NoError(t, err)
	require.Equal(t, models.InFlightStatuses, repo.filter.Statuses)
	require.Equal(t, []models.RequestType{models.RequestTypeChangeYearLevel}, repo.filter.ExcludeTypes)
	require.Equal(t, models.OrderCreatedAsc, repo.filter.OrderBy)

	_, err = svc.ListHistory(context.Background(), dto.RequestQuery{Limit: 500})
	require.NoError(t, err)
	require.Equal(t, models.TerminalStatuses, repo.filter.Statuses)
	require.Equal(t, 100, repo.filter.Limit)
	require.Equal(t, models.OrderCompletedDesc, repo.filter.OrderBy)

	_, err = svc.ListOwn(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, "student-1", repo.filter.UserID)
	require.Equal(t, []models.RequestType{models.RequestTypeChangeYearLevel}, repo.filter.ExcludeTypes)
}

func TestRequestServiceReasonsCatalog(t *testing.T) {
	repo := newRequestRepoStub()
	svc, _ := newTestRequestService(repo)

	catalog := svc.Reasons()
	require.NotEmpty(t, catalog.Submission[models.RequestTypeAdd])
	require.NotEmpty(t, catalog.Rejection[models.RequestTypeDrop])
	require.Equal(t, catalog.Submission[models.RequestTypeAdd], catalog.Submission[models.RequestTypeAddWithException])
	require.Contains(t, catalog.Rejection[models.RequestTypeAdd], "Course full")
}
