package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/course-request-api/internal/dto"
	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/internal/repository"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request, items []models.RequestItem) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	GetItems(ctx context.Context, requestID string) ([]models.RequestItem, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	CountInFlight(ctx context.Context, userID string, requestType models.RequestType, excludeID string) (int, error)
	InFlightTypes(ctx context.Context, userID string) ([]models.RequestType, error)
	MarkProcessing(ctx context.Context, id string, processedAt time.Time) error
	Delete(ctx context.Context, id string) error
	UpdatePending(ctx context.Context, request *models.Request, items []models.RequestItem) error
	UpdateFlag(ctx context.Context, id string, flagged bool) error
	FinalizeDecisions(ctx context.Context, id string, status models.RequestStatus, remarks *string, completedAt time.Time, items []repository.ItemResolution, allowedFrom []models.RequestStatus) error
}

type profileStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RequestService owns the request lifecycle: submission behind the duplicate
// guard, the pending/processing transitions, cancellation, and finalization
// through the decision aggregator.
type RequestService struct {
	repo         requestStore
	users        profileStore
	audit        auditLogger
	logger       *zap.Logger
	metrics      *MetricsService
	historyLimit int
}

// RequestServiceOption configures the service.
type RequestServiceOption func(*RequestService)

// WithHistoryLimit caps the staff history listing.
func WithHistoryLimit(limit int) RequestServiceOption {
	return func(s *RequestService) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithRequestMetrics counts submissions and decisions.
func WithRequestMetrics(metrics *MetricsService) RequestServiceOption {
	return func(s *RequestService) {
		s.metrics = metrics
	}
}

// NewRequestService constructs the service with defaults.
func NewRequestService(repo requestStore, users profileStore, audit auditLogger, logger *zap.Logger, opts ...RequestServiceOption) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RequestService{
		repo:         repo,
		users:        users,
		audit:        audit,
		logger:       logger,
		historyLimit: 100,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CanSubmit reports whether the user has no in-flight request of the type.
// The check is advisory: it is not atomic with the insert, so two racing
// submissions of the same type may both pass. Staff resolve the extra row.
func (s *RequestService) CanSubmit(ctx context.Context, userID string, requestType models.RequestType) (bool, error) {
	count, err := s.repo.CountInFlight(ctx, userID, requestType, "")
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check in-flight requests")
	}
	return count == 0, nil
}

// Submit files a single request for the authenticated student.
func (s *RequestService) Submit(ctx context.Context, userID string, req dto.SubmitRequest) (*models.Request, error) {
	if err := req.Data.ValidateFor(req.RequestType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	ok, err := s.CanSubmit(ctx, userID, req.RequestType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrDuplicateActiveRequest, "")
	}

	request, items, err := s.buildRequest(ctx, userID, req.RequestType, req.Data)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, request, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitRequestAudit(ctx, userID, models.AuditActionRequestSubmit, request.ID)
	s.metrics.RecordSubmission(request.RequestType)
	return request, nil
}

// SubmitBatch files several request types together. Types the user already
// has in flight are skipped rather than failing the whole batch; the response
// names them so the caller can tell the student.
func (s *RequestService) SubmitBatch(ctx context.Context, userID string, batch dto.SubmitBatchRequest) (*dto.SubmitBatchResponse, error) {
	if len(batch.Requests) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one request is required")
	}
	for _, req := range batch.Requests {
		if err := req.Data.ValidateFor(req.RequestType); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
	}

	inFlight, err := s.repo.InFlightTypes(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check in-flight requests")
	}
	blocked := make(map[models.RequestType]bool, len(inFlight))
	for _, t := range inFlight {
		blocked[t] = true
	}

	result := &dto.SubmitBatchResponse{Created: []models.Request{}, Skipped: []models.RequestType{}}
	for _, req := range batch.Requests {
		if blocked[req.RequestType] {
			result.Skipped = append(result.Skipped, req.RequestType)
			continue
		}
		request, items, err := s.buildRequest(ctx, userID, req.RequestType, req.Data)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, request, items); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to create %s request", req.RequestType))
		}
		blocked[req.RequestType] = true
		result.Created = append(result.Created, *request)
		s.emitRequestAudit(ctx, userID, models.AuditActionRequestSubmit, request.ID)
		s.metrics.RecordSubmission(request.RequestType)
	}
	return result, nil
}

// StartProcessing moves a pending request into processing.
func (s *RequestService) StartProcessing(ctx context.Context, id, staffID string) (*models.Request, error) {
	now := time.Now().UTC()
	if err := s.repo.MarkProcessing(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.transitionError(ctx, id, "only pending requests can enter processing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start processing")
	}
	s.emitRequestAudit(ctx, staffID, models.AuditActionRequestProcess, id)
	return s.Get(ctx, id)
}

// Cancel deletes the owner's pending request; items cascade.
func (s *RequestService) Cancel(ctx context.Context, id, byUserID string) error {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.UserID != byUserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owner may cancel a request")
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidStateTransition, "only pending requests can be cancelled")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}
	s.emitRequestAudit(ctx, byUserID, models.AuditActionRequestCancel, id)
	return nil
}

// Update rewrites the owner's pending request in place. The submission slot
// is kept (created_at does not move), and switching type re-runs the
// duplicate guard against the student's other in-flight requests.
func (s *RequestService) Update(ctx context.Context, id, userID string, payload dto.UpdateRequestPayload) (*models.Request, error) {
	if err := payload.Data.ValidateFor(payload.RequestType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner may edit a request")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition, "only pending requests can be edited")
	}
	if payload.RequestType != request.RequestType {
		count, err := s.repo.CountInFlight(ctx, userID, payload.RequestType, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check in-flight requests")
		}
		if count > 0 {
			return nil, appErrors.Clone(appErrors.ErrDuplicateActiveRequest, "")
		}
	}

	request.RequestType = payload.RequestType
	request.RequestData = payload.Data
	items := deriveItems(payload.RequestType, payload.Data)
	if err := s.repo.UpdatePending(ctx, request, items); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition, "request is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	s.emitRequestAudit(ctx, userID, models.AuditActionRequestUpdate, id)
	return request, nil
}

// Finalize applies a decision set to a processing request.
func (s *RequestService) Finalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload) (*models.Request, error) {
	return s.finalize(ctx, id, staffID, payload, []models.RequestStatus{models.RequestStatusProcessing})
}

// ReFinalize re-runs finalization on an already terminal request. This is the
// staff edit-history path; it goes through the same aggregation as a fresh
// finalize and simply overwrites the previous outcome.
func (s *RequestService) ReFinalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload) (*models.Request, error) {
	return s.finalize(ctx, id, staffID, payload, models.TerminalStatuses)
}

func (s *RequestService) finalize(ctx context.Context, id, staffID string, payload dto.FinalizeRequestPayload, allowedFrom []models.RequestStatus) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !statusIn(request.Status, allowedFrom) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition,
			fmt.Sprintf("cannot finalize a %s request here", request.Status))
	}

	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}

	outcome, err := AggregateDecisions(request.RequestType, items, decisionSetFromPayload(payload))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.FinalizeDecisions(ctx, id, outcome.Status, outcome.Remarks, now, outcome.Items, allowedFrom); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition, "request state changed, re-fetch and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist decisions")
	}

	request.Status = outcome.Status
	request.Remarks = outcome.Remarks
	request.CompletedAt = &now
	resolved := make(map[string]repository.ItemResolution, len(outcome.Items))
	for _, res := range outcome.Items {
		resolved[res.ItemID] = res
	}
	for i := range items {
		if res, ok := resolved[items[i].ID]; ok {
			items[i].Status = res.Status
			remarks := res.Remarks
			if remarks == "" {
				items[i].Remarks = nil
			} else {
				items[i].Remarks = &remarks
			}
		}
	}
	request.Items = items

	s.emitRequestAudit(ctx, staffID, models.AuditActionRequestFinal, id)
	s.metrics.RecordDecision(outcome.Status)
	return request, nil
}

// UpdateFlag toggles the manual attention marker; it never touches status.
func (s *RequestService) UpdateFlag(ctx context.Context, id, staffID string, flagged bool) error {
	if err := s.repo.UpdateFlag(ctx, id, flagged); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update flag")
	}
	s.emitRequestAudit(ctx, staffID, models.AuditActionRequestFlag, id)
	return nil
}

// Get loads a request with its items.
func (s *RequestService) Get(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	request.Items = items
	return request, nil
}

// GetForActor loads a request enforcing ownership for students.
func (s *RequestService) GetForActor(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && request.UserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// ListQueue returns the staff review queue: in-flight requests, earliest
// first, year-level requests excluded.
func (s *RequestService) ListQueue(ctx context.Context, query dto.RequestQuery) ([]models.Request, error) {
	statuses := query.Status
	if len(statuses) == 0 {
		statuses = models.InFlightStatuses
	}
	return s.list(ctx, models.RequestFilter{
		Statuses:     statuses,
		ExcludeTypes: []models.RequestType{models.RequestTypeChangeYearLevel},
		Search:       query.Search,
		College:      query.College,
		FlaggedOnly:  query.FlaggedOnly,
		Limit:        query.Limit,
		Offset:       query.Offset,
		OrderBy:      models.OrderCreatedAsc,
	})
}

// ListHistory returns completed requests, most recently finished first.
func (s *RequestService) ListHistory(ctx context.Context, query dto.RequestQuery) ([]models.Request, error) {
	statuses := query.Status
	if len(statuses) == 0 {
		statuses = models.TerminalStatuses
	}
	limit := query.Limit
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.list(ctx, models.RequestFilter{
		Statuses:    statuses,
		Search:      query.Search,
		College:     query.College,
		FlaggedOnly: query.FlaggedOnly,
		Limit:       limit,
		Offset:      query.Offset,
		OrderBy:     models.OrderCompletedDesc,
	})
}

// ListOwn returns the student's requests, newest first. Year-level requests
// live outside this listing, as they do outside the queue.
func (s *RequestService) ListOwn(ctx context.Context, userID string) ([]models.Request, error) {
	return s.list(ctx, models.RequestFilter{
		UserID:       userID,
		ExcludeTypes: []models.RequestType{models.RequestTypeChangeYearLevel},
		OrderBy:      models.OrderCreatedDesc,
	})
}

// Reasons returns the predefined reason catalogs for form population.
func (s *RequestService) Reasons() dto.ReasonCatalog {
	return dto.ReasonCatalog{
		Submission: SubmissionReasons(),
		Rejection:  RejectionReasons(),
	}
}

func (s *RequestService) list(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

func (s *RequestService) buildRequest(ctx context.Context, userID string, requestType models.RequestType, data models.RequestData) (*models.Request, []models.RequestItem, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	request := &models.Request{
		ID:          uuid.NewString(),
		UserID:      userID,
		RequestType: requestType,
		Status:      models.RequestStatusPending,
		RequestData: data,
		IDNumber:    user.IDNumber,
		College:     user.College,
		Program:     user.Program,
		LastName:    user.LastName,
		FirstName:   user.FirstName,
		MiddleName:  user.MiddleName,
		Suffix:      user.Suffix,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		Facebook:    user.Facebook,
		CreatedAt:   time.Now().UTC(),
	}
	return request, deriveItems(requestType, data), nil
}

// deriveItems materializes course-level decision units from the payload. A
// change pair shares a group id so both sides get decided as one unit.
// Year-level requests carry no items and are finalized via the request-level
// fallback.
func deriveItems(requestType models.RequestType, data models.RequestData) []models.RequestItem {
	switch requestType {
	case models.RequestTypeAdd, models.RequestTypeAddWithException:
		return itemsFromCourses(data.Courses, models.ItemActionAdd)
	case models.RequestTypeDrop:
		return itemsFromCourses(data.Courses, models.ItemActionDrop)
	case models.RequestTypeChange:
		items := make([]models.RequestItem, 0, len(data.OldCourses)*2)
		for i := range data.OldCourses {
			groupID := uuid.NewString()
			dropped := itemFromCourse(data.OldCourses[i], models.ItemActionDrop)
			dropped.GroupID = &groupID
			added := itemFromCourse(data.NewCourses[i], models.ItemActionAdd)
			added.GroupID = &groupID
			items = append(items, dropped, added)
		}
		return items
	default:
		return nil
	}
}

func itemsFromCourses(courses []models.Course, action models.ItemAction) []models.RequestItem {
	items := make([]models.RequestItem, 0, len(courses))
	for _, course := range courses {
		items = append(items, itemFromCourse(course, action))
	}
	return items
}

func itemFromCourse(course models.Course, action models.ItemAction) models.RequestItem {
	return models.RequestItem{
		ID:               uuid.NewString(),
		Action:           action,
		CourseCode:       course.CourseCode,
		DescriptiveTitle: course.DescriptiveTitle,
		SectionCode:      course.SectionCode,
		Time:             course.Time,
		Day:              course.Day,
		Status:           models.ItemStatusPending,
	}
}

func decisionSetFromPayload(payload dto.FinalizeRequestPayload) DecisionSet {
	set := DecisionSet{RequestRemarks: payload.RequestRemarks}
	for _, d := range payload.Decisions {
		set.Items = append(set.Items, ItemDecision{
			ItemID:  d.ItemID,
			GroupID: d.GroupID,
			Status:  d.Status,
			Reason:  d.Reason,
			Remarks: d.Remarks,
		})
	}
	if payload.RequestStatus != "" {
		set.Request = &RequestDecision{
			Status:  payload.RequestStatus,
			Reason:  payload.RequestReason,
			Remarks: payload.RequestComment,
		}
	}
	return set
}

// transitionError distinguishes a missing request from a bad transition after
// a guarded update matched no row.
func (s *RequestService) transitionError(ctx context.Context, id, message string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return appErrors.Clone(appErrors.ErrInvalidStateTransition, message)
}

func statusIn(status models.RequestStatus, set []models.RequestStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (s *RequestService) emitRequestAudit(ctx context.Context, actorID, action, requestID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "request",
		ResourceID: &requestID,
		IPAddress:  "system",
		UserAgent:  "request-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
