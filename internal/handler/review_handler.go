package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusops/course-request-api/internal/dto"
	"github.com/campusops/course-request-api/internal/models"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
	"github.com/campusops/course-request-api/pkg/response"
)

type reviewService interface {
	ListQueue(ctx context.Context, query dto.RequestQuery) ([]models.Request, error)
	ListHistory(ctx context.Context, query dto.RequestQuery) ([]models.Request, error)
	Get(ctx context.Context, id string) (*models.Request, error)
	StartProcessing(ctx context.Context, id, staffID string) (*models.Request, error)
	Finalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload) (*models.Request, error)
	ReFinalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload) (*models.Request, error)
	UpdateFlag(ctx context.Context, id, staffID string, flagged bool) error
}

// ReviewHandler exposes the staff processing endpoints.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// Queue godoc
// @Summary List the pending request queue
// @Tags Review
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Student name or ID number"
// @Param college query string false "College filter"
// @Param flagged query bool false "Only flagged requests"
// @Success 200 {object} response.Envelope
// @Router /review/queue [get]
func (h *ReviewHandler) Queue(c *gin.Context) {
	requests, err := h.service.ListQueue(c.Request.Context(), parseRequestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// History godoc
// @Summary List recently completed requests
// @Tags Review
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Student name or ID number"
// @Param college query string false "College filter"
// @Success 200 {object} response.Envelope
// @Router /review/history [get]
func (h *ReviewHandler) History(c *gin.Context) {
	requests, err := h.service.ListHistory(c.Request.Context(), parseRequestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get full request detail for review
// @Tags Review
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /review/{id} [get]
func (h *ReviewHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// StartProcessing godoc
// @Summary Claim the next request for processing
// @Tags Review
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /review/{id}/process [post]
func (h *ReviewHandler) StartProcessing(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.StartProcessing(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Finalize godoc
// @Summary Finalize a request with per-item decisions
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.FinalizeRequestPayload true "Decision set"
// @Success 200 {object} response.Envelope
// @Router /review/{id}/finalize [post]
func (h *ReviewHandler) Finalize(c *gin.Context) {
	h.finalize(c, false)
}

// ReFinalize godoc
// @Summary Amend decisions on an already completed request
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.FinalizeRequestPayload true "Decision set"
// @Success 200 {object} response.Envelope
// @Router /review/{id}/refinalize [post]
func (h *ReviewHandler) ReFinalize(c *gin.Context) {
	h.finalize(c, true)
}

func (h *ReviewHandler) finalize(c *gin.Context, amend bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.FinalizeRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	var (
		request *models.Request
		err     error
	)
	if amend {
		request, err = h.service.ReFinalize(c.Request.Context(), c.Param("id"), claims.UserID, payload)
	} else {
		request, err = h.service.Finalize(c.Request.Context(), c.Param("id"), claims.UserID, payload)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Flag godoc
// @Summary Toggle the attention flag on a request
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.FlagRequestPayload true "Flag state"
// @Success 204 {object} nil
// @Router /review/{id}/flag [patch]
func (h *ReviewHandler) Flag(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.FlagRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid flag payload"))
		return
	}
	if err := h.service.UpdateFlag(c.Request.Context(), c.Param("id"), claims.UserID, payload.Flagged); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseRequestQuery(c *gin.Context) dto.RequestQuery {
	query := dto.RequestQuery{
		Search:  strings.TrimSpace(c.Query("search")),
		College: strings.TrimSpace(c.Query("college")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.RequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RequestStatus(part))
		}
		query.Status = statuses
	}
	if flagged, err := strconv.ParseBool(c.Query("flagged")); err == nil {
		query.FlaggedOnly = flagged
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		query.Offset = offset
	}
	return query
}
