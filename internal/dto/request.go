package dto

import "github.com/campusops/course-request-api/internal/models"

// SubmitRequest captures POST /requests payload for a single request type.
type SubmitRequest struct {
	RequestType models.RequestType `json:"requestType" validate:"required"`
	Data        models.RequestData `json:"data"`
}

// SubmitBatchRequest submits several request types in one call. Types already
// blocked by an in-flight duplicate are skipped, not rejected.
type SubmitBatchRequest struct {
	Requests []SubmitRequest `json:"requests" validate:"required,min=1,dive"`
}

// SubmitBatchResponse reports which types were inserted and which skipped.
type SubmitBatchResponse struct {
	Created []models.Request     `json:"created"`
	Skipped []models.RequestType `json:"skipped"`
}

// UpdateRequestPayload edits a pending request in place. Changing the type
// re-runs the duplicate check against the student's other requests.
type UpdateRequestPayload struct {
	RequestType models.RequestType `json:"requestType" validate:"required"`
	Data        models.RequestData `json:"data"`
}

// ItemDecisionPayload is one per-item or per-group decision in a finalize
// call. Exactly one of ItemID or GroupID must be set.
type ItemDecisionPayload struct {
	ItemID  string            `json:"itemId,omitempty"`
	GroupID string            `json:"groupId,omitempty"`
	Status  models.ItemStatus `json:"status" validate:"required,oneof=approved rejected"`
	Reason  string            `json:"reason,omitempty"`
	Remarks string            `json:"remarks,omitempty"`
}

// FinalizeRequestPayload carries the full decision set for a request. For
// requests without items the request-level decision fields are used instead.
type FinalizeRequestPayload struct {
	Decisions      []ItemDecisionPayload `json:"decisions,omitempty"`
	RequestRemarks *string               `json:"requestRemarks,omitempty"`

	RequestStatus  models.RequestStatus `json:"requestStatus,omitempty"`
	RequestReason  string               `json:"requestReason,omitempty"`
	RequestComment string               `json:"requestComment,omitempty"`
}

// FlagRequestPayload toggles the manual attention marker.
type FlagRequestPayload struct {
	Flagged bool `json:"flagged"`
}

// QueuePositionResponse exposes a pending request's 1-based rank.
type QueuePositionResponse struct {
	RequestID string `json:"requestId"`
	Position  *int   `json:"position"`
}

// RequestQuery mirrors supported staff listing filters.
type RequestQuery struct {
	Status      []models.RequestStatus
	Search      string
	College     string
	FlaggedOnly bool
	Limit       int
	Offset      int
}

// ReasonCatalog lists predefined reasons per request type for form population.
type ReasonCatalog struct {
	Submission map[models.RequestType][]string `json:"submission"`
	Rejection  map[models.RequestType][]string `json:"rejection"`
}
