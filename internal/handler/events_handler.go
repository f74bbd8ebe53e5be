package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/internal/service"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
	"github.com/campusops/course-request-api/pkg/response"
)

type eventSource interface {
	Subscribe(userID string) (<-chan service.WatchEvent, func())
}

// EventsHandler streams request change notifications over server-sent events.
type EventsHandler struct {
	source        eventSource
	keepAliveTick time.Duration
}

// NewEventsHandler constructs the handler.
func NewEventsHandler(source eventSource) *EventsHandler {
	return &EventsHandler{source: source, keepAliveTick: 25 * time.Second}
}

// Stream godoc
// @Summary Subscribe to request change events
// @Tags Events
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /events/requests [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.source == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "event source not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	// Students only see changes to their own requests. Staff subscribe to
	// everything so queue views can refresh.
	filterUserID := ""
	if claims.Role == models.RoleStudent {
		filterUserID = claims.UserID
	}
	events, cancel := h.source.Subscribe(filterUserID)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.keepAliveTick)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("request", event)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
