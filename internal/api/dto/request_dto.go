package dto

import (
	"time"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Location           string             `json:"location"`
	RequestType        domain.RequestType `json:"request_type"`
	RequestedAssetType *domain.AssetType  `json:"requested_asset_type"`
}

// DecisionRequest payload for approve and reject.
type DecisionRequest struct {
	Notes string `json:"notes"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// RequestSummary response.
type RequestSummary struct {
	ID          string              `json:"id"`
	Number      string              `json:"number"`
	Title       string              `json:"title"`
	RequestType domain.RequestType  `json:"request_type"`
	State       domain.RequestState `json:"state"`
	RequesterID string              `json:"requester_id"`
	AssigneeID  *string             `json:"assignee_id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// RequestDetail response.
type RequestDetail struct {
	RequestSummary
	Description        string            `json:"description"`
	Location           string            `json:"location"`
	RequestedAssetType *domain.AssetType `json:"requested_asset_type"`
	AllocatedAssetID   *string           `json:"allocated_asset_id"`
	ApproverID         *string           `json:"approver_id"`
	ApprovalNotes      string            `json:"approval_notes,omitempty"`
	ApprovedAt         *time.Time        `json:"approved_at"`
	RejectedAt         *time.Time        `json:"rejected_at"`
	FulfillmentNotes   string            `json:"fulfillment_notes,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at"`
}

// RequestSummaryView maps a domain request for list responses.
func RequestSummaryView(req *domain.ServiceRequest) RequestSummary {
	return RequestSummary{
		ID:          req.ID,
		Number:      req.Number,
		Title:       req.Title,
		RequestType: req.RequestType,
		State:       req.State,
		RequesterID: req.RequesterID,
		AssigneeID:  req.AssigneeID,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	}
}

// RequestDetailView maps a full domain request.
func RequestDetailView(req *domain.ServiceRequest) RequestDetail {
	return RequestDetail{
		RequestSummary:     RequestSummaryView(req),
		Description:        req.Description,
		Location:           req.Location,
		RequestedAssetType: req.RequestedAssetType,
		AllocatedAssetID:   req.AllocatedAssetID,
		ApproverID:         req.ApproverID,
		ApprovalNotes:      req.ApprovalNotes,
		ApprovedAt:         req.ApprovedAt,
		RejectedAt:         req.RejectedAt,
		FulfillmentNotes:   req.FulfillmentNotes,
		CompletedAt:        req.CompletedAt,
	}
}
