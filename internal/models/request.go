package models

import "time"

// RequestType enumerates supported course-change request categories.
type RequestType string

const (
	RequestTypeAdd              RequestType = "add"
	RequestTypeAddWithException RequestType = "add_with_exception"
	RequestTypeChange           RequestType = "change"
	RequestTypeDrop             RequestType = "drop"
	// RequestTypeChangeYearLevel is a legacy parallel type with its own
	// payload. It never carries items and is excluded from the queue.
	RequestTypeChangeYearLevel RequestType = "change_year_level"
)

// RequestStatus captures workflow states for a request.
type RequestStatus string

const (
	RequestStatusPending           RequestStatus = "pending"
	RequestStatusProcessing        RequestStatus = "processing"
	RequestStatusApproved          RequestStatus = "approved"
	RequestStatusRejected          RequestStatus = "rejected"
	RequestStatusPartiallyApproved RequestStatus = "partially_approved"
)

// InFlightStatuses are the non-terminal workflow states.
var InFlightStatuses = []RequestStatus{RequestStatusPending, RequestStatusProcessing}

// TerminalStatuses are the states a finalized request can hold.
var TerminalStatuses = []RequestStatus{RequestStatusApproved, RequestStatusRejected, RequestStatusPartiallyApproved}

// InFlight reports whether the status still occupies the queue.
func (s RequestStatus) InFlight() bool {
	return s == RequestStatusPending || s == RequestStatusProcessing
}

// Terminal reports whether the status is final.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusPartiallyApproved
}

// ItemAction distinguishes the two sides of a course line.
type ItemAction string

const (
	ItemActionAdd  ItemAction = "add"
	ItemActionDrop ItemAction = "drop"
)

// ItemStatus captures the per-course decision state.
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusApproved ItemStatus = "approved"
	ItemStatusRejected ItemStatus = "rejected"
)

// Request stores one student submission. Student profile columns are a
// snapshot taken at submission time.
type Request struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"user_id"`
	RequestType RequestType   `db:"request_type" json:"request_type"`
	Status      RequestStatus `db:"status" json:"status"`
	RequestData RequestData   `db:"request_data" json:"request_data"`
	Remarks     *string       `db:"remarks" json:"remarks,omitempty"`
	IsFlagged   bool          `db:"is_flagged" json:"is_flagged"`

	IDNumber    string  `db:"id_number" json:"id_number"`
	College     string  `db:"college" json:"college"`
	Program     string  `db:"program" json:"program"`
	LastName    string  `db:"last_name" json:"last_name"`
	FirstName   string  `db:"first_name" json:"first_name"`
	MiddleName  *string `db:"middle_name" json:"middle_name,omitempty"`
	Suffix      *string `db:"suffix" json:"suffix,omitempty"`
	Email       string  `db:"email" json:"email"`
	PhoneNumber string  `db:"phone_number" json:"phone_number"`
	Facebook    *string `db:"facebook" json:"facebook,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	Items []RequestItem `db:"-" json:"items,omitempty"`
}

// RequestItem is one course-level decision unit within a request. Requests
// created before item tracking existed have none.
type RequestItem struct {
	ID               string     `db:"id" json:"id"`
	RequestID        string     `db:"request_id" json:"request_id"`
	GroupID          *string    `db:"group_id" json:"group_id,omitempty"`
	Action           ItemAction `db:"action" json:"action"`
	CourseCode       string     `db:"course_code" json:"course_code"`
	DescriptiveTitle string     `db:"descriptive_title" json:"descriptive_title"`
	SectionCode      string     `db:"section_code" json:"section_code"`
	Time             string     `db:"time" json:"time"`
	Day              string     `db:"day" json:"day"`
	Status           ItemStatus `db:"status" json:"status"`
	Remarks          *string    `db:"remarks" json:"remarks,omitempty"`
}

// RequestFilter constrains listing queries.
type RequestFilter struct {
	UserID       string
	Statuses     []RequestStatus
	Types        []RequestType
	ExcludeTypes []RequestType
	Search       string
	College      string
	FlaggedOnly  bool
	Limit        int
	Offset       int
	OrderBy      RequestOrder
}

// RequestOrder selects a listing sort.
type RequestOrder string

const (
	OrderCreatedAsc    RequestOrder = "created_asc"
	OrderCreatedDesc   RequestOrder = "created_desc"
	OrderCompletedDesc RequestOrder = "completed_desc"
)
