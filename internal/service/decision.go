package service

import (
	"fmt"

	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/internal/repository"
	appErrors "github.com/campusops/course-request-api/pkg/errors"
)

// ItemDecision is one caller-supplied decision. Exactly one of ItemID or
// GroupID identifies the target; a group decision applies to every item
// sharing that group.
type ItemDecision struct {
	ItemID  string
	GroupID string
	Status  models.ItemStatus
	Reason  string
	Remarks string
}

// RequestDecision is the fallback decision unit for requests that carry no
// items (created before item tracking existed).
type RequestDecision struct {
	Status  models.RequestStatus
	Reason  string
	Remarks string
}

// DecisionSet is the full finalization input for one request.
type DecisionSet struct {
	Items          []ItemDecision
	Request        *RequestDecision
	RequestRemarks *string
}

// AggregateOutcome is what finalization persists: the derived request status
// and remarks plus every item's resolution.
type AggregateOutcome struct {
	Status  models.RequestStatus
	Remarks *string
	Items   []repository.ItemResolution
}

// AggregateDecisions validates a decision set against the request's items and
// derives the terminal outcome. It writes nothing; callers persist the
// outcome atomically. Running it twice over the same input yields the same
// outcome, which is what makes re-finalization safe.
func AggregateDecisions(requestType models.RequestType, items []models.RequestItem, set DecisionSet) (*AggregateOutcome, error) {
	if len(items) == 0 {
		return aggregateWithoutItems(set)
	}

	resolved, err := resolveDecisions(items, set.Items)
	if err != nil {
		return nil, err
	}

	if requestType == models.RequestTypeChange {
		if err := checkGroupConsistency(items, resolved); err != nil {
			return nil, err
		}
	}

	outcome := &AggregateOutcome{Remarks: set.RequestRemarks}
	approvedCount := 0
	for _, item := range items {
		decision := resolved[item.ID]
		remark, err := composeRemark(decision)
		if err != nil {
			return nil, err
		}
		if decision.Status == models.ItemStatusApproved {
			approvedCount++
		}
		outcome.Items = append(outcome.Items, repository.ItemResolution{
			ItemID:  item.ID,
			Status:  decision.Status,
			Remarks: remark,
		})
	}

	switch approvedCount {
	case len(items):
		outcome.Status = models.RequestStatusApproved
	case 0:
		outcome.Status = models.RequestStatusRejected
	default:
		outcome.Status = models.RequestStatusPartiallyApproved
	}
	return outcome, nil
}

func aggregateWithoutItems(set DecisionSet) (*AggregateOutcome, error) {
	if set.Request == nil {
		return nil, appErrors.Clone(appErrors.ErrIncompleteDecisions, "request has no items, a request-level decision is required")
	}
	status := set.Request.Status
	if status != models.RequestStatusApproved && status != models.RequestStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported request decision %q", status))
	}

	remark := joinReasonRemarks(set.Request.Reason, set.Request.Remarks)
	if status == models.RequestStatusRejected && remark == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingRejectionReason, "")
	}

	outcome := &AggregateOutcome{Status: status}
	if remark != "" {
		outcome.Remarks = &remark
	}
	return outcome, nil
}

// resolveDecisions maps every item to its decision. Group-keyed decisions are
// expanded to their member items first, then item-keyed decisions are applied
// on top.
func resolveDecisions(items []models.RequestItem, decisions []ItemDecision) (map[string]ItemDecision, error) {
	byGroup := make(map[string][]string)
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
		if item.GroupID != nil {
			byGroup[*item.GroupID] = append(byGroup[*item.GroupID], item.ID)
		}
	}

	resolved := make(map[string]ItemDecision, len(items))
	for _, d := range decisions {
		if d.Status != models.ItemStatusApproved && d.Status != models.ItemStatusRejected {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported item decision %q", d.Status))
		}
		switch {
		case d.GroupID != "" && d.ItemID == "":
			members, ok := byGroup[d.GroupID]
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown group %s", d.GroupID))
			}
			for _, id := range members {
				resolved[id] = d
			}
		case d.ItemID != "" && d.GroupID == "":
			if !known[d.ItemID] {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown item %s", d.ItemID))
			}
			resolved[d.ItemID] = d
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "decision must reference exactly one item or group")
		}
	}

	for _, item := range items {
		if _, ok := resolved[item.ID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrIncompleteDecisions, fmt.Sprintf("item %s has no decision", item.ID))
		}
	}
	return resolved, nil
}

// checkGroupConsistency rejects decision sets where the two sides of a change
// pair would diverge. Divergence can only come from item-keyed input, and the
// aggregator refuses it rather than picking a side.
func checkGroupConsistency(items []models.RequestItem, resolved map[string]ItemDecision) error {
	groupStatus := make(map[string]models.ItemStatus)
	for _, item := range items {
		if item.GroupID == nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("change item %s is missing a group", item.ID))
		}
		status := resolved[item.ID].Status
		if prev, ok := groupStatus[*item.GroupID]; ok && prev != status {
			return appErrors.Clone(appErrors.ErrInconsistentGroupDecision, fmt.Sprintf("group %s has conflicting decisions", *item.GroupID))
		}
		groupStatus[*item.GroupID] = status
	}
	return nil
}

// composeRemark builds the stored remark for one item. Approvals store no
// remark; rejections store "<reason> - <remarks>", or whichever half was
// supplied, and must not be empty.
func composeRemark(d ItemDecision) (string, error) {
	if d.Status == models.ItemStatusApproved {
		return "", nil
	}
	remark := joinReasonRemarks(d.Reason, d.Remarks)
	if remark == "" {
		return "", appErrors.Clone(appErrors.ErrMissingRejectionReason, "")
	}
	return remark, nil
}

func joinReasonRemarks(reason, remarks string) string {
	switch {
	case reason != "" && remarks != "":
		return reason + " - " + remarks
	case reason != "":
		return reason
	default:
		return remarks
	}
}
