package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/course-request-api/internal/dto"
	"github.com/campusops/course-request-api/internal/models"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
	"github.com/campusops/course-request-api/pkg/response"
)

type requestService interface {
	Submit(ctx context.Context, userID string, req dto.SubmitRequest) (*models.Request, error)
	SubmitBatch(ctx context.Context, userID string, batch dto.SubmitBatchRequest) (*dto.SubmitBatchResponse, error)
	ListOwn(ctx context.Context, userID string) ([]models.Request, error)
	GetForActor(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error)
	Update(ctx context.Context, id, userID string, payload dto.UpdateRequestPayload) (*models.Request, error)
	Cancel(ctx context.Context, id, byUserID string) error
	Reasons() dto.ReasonCatalog
}

type queuePositionService interface {
	Position(ctx context.Context, requestID string) (*int, bool, error)
}

// RequestHandler exposes the student-facing request endpoints.
type RequestHandler struct {
	service requestService
	queue   queuePositionService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service requestService, queue queuePositionService) *RequestHandler {
	return &RequestHandler{service: service, queue: queue}
}

// Submit godoc
// @Summary Submit a course change request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	created, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, created, nil)
}

// SubmitBatch godoc
// @Summary Submit several request types at once
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /requests/batch [post]
func (h *RequestHandler) SubmitBatch(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var batch dto.SubmitBatchRequest
	if err := c.ShouldBindJSON(&batch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch payload"))
		return
	}
	result, err := h.service.SubmitBatch(c.Request.Context(), claims.UserID, batch)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if len(result.Created) == 0 {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// ListOwn godoc
// @Summary List the caller's requests
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) ListOwn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.ListOwn(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get request detail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.GetForActor(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Update godoc
// @Summary Edit a pending request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateRequestPayload true "Updated payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.UpdateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid update payload"))
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), claims.UserID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Cancel godoc
// @Summary Cancel a pending request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} nil
// @Router /requests/{id} [delete]
func (h *RequestHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// QueuePosition godoc
// @Summary Queue position of a pending request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/position [get]
func (h *RequestHandler) QueuePosition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := c.Param("id")
	if claims.Role == models.RoleStudent {
		if _, err := h.service.GetForActor(c.Request.Context(), id, claims); err != nil {
			response.Error(c, err)
			return
		}
	}
	position, _, err := h.queue.Position(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.QueuePositionResponse{RequestID: id, Position: position}, nil)
}

// Reasons godoc
// @Summary Predefined submission and rejection reasons per request type
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/reasons [get]
func (h *RequestHandler) Reasons(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Reasons(), nil)
}
