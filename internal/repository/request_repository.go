package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/course-request-api/internal/models"
)

const requestColumns = `id, user_id, request_type, status, request_data, remarks, is_flagged,
       id_number, college, program, last_name, first_name, middle_name, suffix, email, phone_number, facebook,
       created_at, processed_at, completed_at`

const itemColumns = `id, request_id, group_id, action, course_code, descriptive_title, section_code, time, day, status, remarks`

// RequestRepository persists course-change requests and their items.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request row together with its derived items in one
// transaction.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request, items []models.RequestItem) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO requests
	(id, user_id, request_type, status, request_data, remarks, is_flagged,
	 id_number, college, program, last_name, first_name, middle_name, suffix, email, phone_number, facebook,
	 created_at, processed_at, completed_at)
	VALUES (:id, :user_id, :request_type, :status, :request_data, :remarks, :is_flagged,
	 :id_number, :college, :program, :last_name, :first_name, :middle_name, :suffix, :email, :phone_number, :facebook,
	 :created_at, :processed_at, :completed_at)`
	if _, err := tx.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if err := insertItems(ctx, tx, request.ID, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	request.Items = items
	return nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, requestID string, items []models.RequestItem) error {
	const query = `INSERT INTO request_items
	(id, request_id, group_id, action, course_code, descriptive_title, section_code, time, day, status, remarks)
	VALUES (:id, :request_id, :group_id, :action, :course_code, :descriptive_title, :section_code, :time, :day, :status, :remarks)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].RequestID = requestID
		if items[i].Status == "" {
			items[i].Status = models.ItemStatusPending
		}
		if _, err := tx.NamedExecContext(ctx, query, &items[i]); err != nil {
			return fmt.Errorf("create request item: %w", err)
		}
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE id = $1`, requestColumns)
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// GetItems returns the items belonging to a request, stable by id.
func (r *RequestRepository) GetItems(ctx context.Context, requestID string) ([]models.RequestItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM request_items WHERE request_id = $1 ORDER BY id ASC`, itemColumns)
	var items []models.RequestItem
	if err := r.db.SelectContext(ctx, &items, query, requestID); err != nil {
		return nil, fmt.Errorf("list request items: %w", err)
	}
	return items, nil
}

// List returns requests matching the filter.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM requests`, requestColumns))

	conditions := make([]string, 0, 6)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("request_type IN (%s)", strings.Join(placeholders, ",")))
	}
	for _, t := range filter.ExcludeTypes {
		args = append(args, t)
		conditions = append(conditions, fmt.Sprintf("request_type <> $%d", len(args)))
	}
	if filter.College != "" {
		args = append(args, filter.College)
		conditions = append(conditions, fmt.Sprintf("college = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(id_number ILIKE $%d OR last_name ILIKE $%d OR first_name ILIKE $%d)", n, n, n))
	}
	if filter.FlaggedOnly {
		conditions = append(conditions, "is_flagged = true")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	switch filter.OrderBy {
	case models.OrderCreatedAsc:
		builder.WriteString(" ORDER BY created_at ASC, id ASC")
	case models.OrderCompletedDesc:
		builder.WriteString(" ORDER BY completed_at DESC")
	default:
		builder.WriteString(" ORDER BY created_at DESC")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// CountInFlight counts a user's pending/processing requests of the given
// type, optionally excluding one request id (used by the edit path).
func (r *RequestRepository) CountInFlight(ctx context.Context, userID string, requestType models.RequestType, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM requests WHERE user_id = $1 AND request_type = $2 AND status IN ('pending', 'processing')`
	args := []interface{}{userID, requestType}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count in-flight requests: %w", err)
	}
	return count, nil
}

// InFlightTypes returns the distinct request types the user currently has in
// flight. Used by batch submission to skip blocked types in one round trip.
func (r *RequestRepository) InFlightTypes(ctx context.Context, userID string) ([]models.RequestType, error) {
	const query = `SELECT DISTINCT request_type FROM requests WHERE user_id = $1 AND status IN ('pending', 'processing')`
	var types []models.RequestType
	if err := r.db.SelectContext(ctx, &types, query, userID); err != nil {
		return nil, fmt.Errorf("list in-flight types: %w", err)
	}
	return types, nil
}

// MarkProcessing transitions a pending request to processing. Returns
// sql.ErrNoRows when the request is missing or not pending.
func (r *RequestRepository) MarkProcessing(ctx context.Context, id string, processedAt time.Time) error {
	const query = `UPDATE requests SET status = 'processing', processed_at = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, processedAt)
	if err != nil {
		return fmt.Errorf("mark request processing: %w", err)
	}
	return requireRowsAffected(result)
}

// Delete removes a request; items cascade at the store level.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return requireRowsAffected(result)
}

// UpdatePending rewrites a pending request's type and payload and replaces
// its items. The guard keeps the edit path off requests that have already
// entered processing. created_at is untouched so the queue slot is kept.
func (r *RequestRepository) UpdatePending(ctx context.Context, request *models.Request, items []models.RequestItem) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE requests SET request_type = :request_type, request_data = :request_data
	WHERE id = :id AND user_id = :user_id AND status = 'pending'`
	result, err := tx.NamedExecContext(ctx, query, request)
	if err != nil {
		return fmt.Errorf("update pending request: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM request_items WHERE request_id = $1`, request.ID); err != nil {
		return fmt.Errorf("clear request items: %w", err)
	}
	if err := insertItems(ctx, tx, request.ID, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update request: %w", err)
	}
	request.Items = items
	return nil
}

// UpdateFlag toggles the manual attention marker, independent of status.
func (r *RequestRepository) UpdateFlag(ctx context.Context, id string, flagged bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE requests SET is_flagged = $2 WHERE id = $1`, id, flagged)
	if err != nil {
		return fmt.Errorf("update request flag: %w", err)
	}
	return requireRowsAffected(result)
}

// ItemResolution is one decided item to persist during finalization.
type ItemResolution struct {
	ItemID  string
	Status  models.ItemStatus
	Remarks string
}

// FinalizeDecisions applies the aggregated outcome to the parent row and all
// item rows as one unit. allowedFrom guards the parent transition; passing a
// terminal set re-opens the edit-history path.
func (r *RequestRepository) FinalizeDecisions(ctx context.Context, id string, status models.RequestStatus, remarks *string, completedAt time.Time, items []ItemResolution, allowedFrom []models.RequestStatus) error {
	if len(allowedFrom) == 0 {
		return fmt.Errorf("finalize requires at least one allowed source status")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	args := []interface{}{id, status, remarks, completedAt}
	placeholders := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE requests SET status = $2, remarks = $3, completed_at = $4 WHERE id = $1 AND status IN (%s)`,
		strings.Join(placeholders, ","))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize request: %w", err)
	}
	if err := requireRowsAffected(result); err != nil {
		return err
	}

	const itemQuery = `UPDATE request_items SET status = $2, remarks = $3 WHERE id = $1 AND request_id = $4`
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, itemQuery, item.ItemID, item.Status, item.Remarks, id); err != nil {
			return fmt.Errorf("finalize request item %s: %w", item.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// QueuePosition computes the 1-based rank of a pending request among the
// pending population, earliest first, ties broken by id. Year-level requests
// are not part of the queue. Returns nil when the request is not pending.
func (r *RequestRepository) QueuePosition(ctx context.Context, id string) (*int, error) {
	const query = `SELECT position FROM (
		SELECT id, ROW_NUMBER() OVER (ORDER BY created_at ASC, id ASC) AS position
		FROM requests
		WHERE status = 'pending' AND request_type <> 'change_year_level'
	) ranked WHERE id = $1`
	var position int
	if err := r.db.GetContext(ctx, &position, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("queue position: %w", err)
	}
	return &position, nil
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
