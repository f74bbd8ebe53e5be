package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campusops/course-request-api/internal/dto"
	"github.com/campusops/course-request-api/internal/middleware"
	"github.com/campusops/course-request-api/internal/models"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
)

type reviewServiceMock struct {
	queueResp    []models.Request
	historyResp  []models.Request
	getResp      *models.Request
	processResp  *models.Request
	processErr   error
	finalizeResp *models.Request
	finalizeErr  error
	flagErr      error

	lastQuery    dto.RequestQuery
	lastPayload  dto.FinalizeRequestPayload
	refinalized  bool
	lastFlagged  bool
	lastStaffID  string
	lastTargetID string
}

func (m *reviewServiceMock) ListQueue(ctx context.Context, query dto.RequestQuery) ([]models.Request, error) {
	m.lastQuery = query
	return m.queueResp, nil
}

func (m *reviewServiceMock) ListHistory(ctx context.Context, query dto.RequestQuery) ([]models.Request, error) {
	m.lastQuery = query
	return m.historyResp, nil
}

func (m *reviewServiceMock) Get(ctx context.Context, id string) (*models.Request, error) {
	return m.getResp, nil
}

func (m *reviewServiceMock) StartProcessing(ctx context.Context, id, staffID string) (*models.Request, error) {
	m.lastTargetID = id
	m.lastStaffID = staffID
	return m.processResp, m.processErr
}

func (m *reviewServiceMock) Finalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload) (*models.Request, error) {
	m.lastPayload = payload
	return m.finalizeResp, m.finalizeErr
}

func (m *reviewServiceMock) ReFinalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload) (*models.Request, error) {
	m.refinalized = true
	m.lastPayload = payload
	return m.finalizeResp, m.finalizeErr
}

func (m *reviewServiceMock) UpdateFlag(ctx context.Context, id, staffID string, flagged bool) error {
	m.lastFlagged = flagged
	return m.flagErr
}

func asStaff(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
}

func TestReviewHandlerQueueParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{queueResp: []models.Request{{ID: "req-1"}}}
	h := NewReviewHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/review/queue?status=pending,processing&search=reyes&college=CCS&flagged=true&limit=25", nil)
	asStaff(c)

	h.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.RequestStatus{models.RequestStatusPending, models.RequestStatusProcessing}, mockSvc.lastQuery.Status)
	require.Equal(t, "reyes", mockSvc.lastQuery.Search)
	require.Equal(t, "CCS", mockSvc.lastQuery.College)
	require.True(t, mockSvc.lastQuery.FlaggedOnly)
	require.Equal(t, 25, mockSvc.lastQuery.Limit)
}

func TestReviewHandlerStartProcessing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{processResp: &models.Request{ID: "req-1", Status: models.RequestStatusProcessing}}
	h := NewReviewHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/review/req-1/process", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	asStaff(c)

	h.StartProcessing(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-1", mockSvc.lastTargetID)
	require.Equal(t, "staff-1", mockSvc.lastStaffID)
}

func TestReviewHandlerStartProcessingConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{processErr: appErrors.ErrInvalidStateTransition}
	h := NewReviewHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/review/req-1/process", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	asStaff(c)

	h.StartProcessing(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReviewHandlerFinalize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{finalizeResp: &models.Request{ID: "req-1", Status: models.RequestStatusApproved}}
	h := NewReviewHandler(mockSvc)

	payload, _ := json.Marshal(dto.FinalizeRequestPayload{Decisions: []dto.ItemDecisionPayload{
		{ItemID: "item-1", Status: models.ItemStatusApproved},
	}})
	c, w := newTestContext(http.MethodPost, "/review/req-1/finalize", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	asStaff(c)

	h.Finalize(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, mockSvc.refinalized)
	require.Len(t, mockSvc.lastPayload.Decisions, 1)
}

func TestReviewHandlerFinalizeIncompleteDecisions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{finalizeErr: appErrors.ErrIncompleteDecisions}
	h := NewReviewHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/review/req-1/finalize", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	asStaff(c)

	h.Finalize(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewHandlerReFinalize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{finalizeResp: &models.Request{ID: "req-1", Status: models.RequestStatusRejected}}
	h := NewReviewHandler(mockSvc)

	payload, _ := json.Marshal(dto.FinalizeRequestPayload{Decisions: []dto.ItemDecisionPayload{
		{ItemID: "item-1", Status: models.ItemStatusRejected, Reason: "Course full"},
	}})
	c, w := newTestContext(http.MethodPost, "/review/req-1/refinalize", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	asStaff(c)

	h.ReFinalize(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mockSvc.refinalized)
}

func TestReviewHandlerFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewServiceMock{}
	h := NewReviewHandler(mockSvc)

	payload, _ := json.Marshal(dto.FlagRequestPayload{Flagged: true})
	c, w := newTestContext(http.MethodPatch, "/review/req-1/flag", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	asStaff(c)

	h.Flag(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	require.True(t, mockSvc.lastFlagged)
}
