package domain

import "time"

// RequestState enumerates the service-request workflow states.
type RequestState string

const (
	RequestStateDraft            RequestState = "draft"
	RequestStateAwaitingApproval RequestState = "awaiting_approval"
	RequestStateApproved         RequestState = "approved"
	RequestStateAssigned         RequestState = "assigned"
	RequestStateInProgress       RequestState = "in_progress"
	RequestStateNeedsHelp        RequestState = "needs_help"
	RequestStateCompleted        RequestState = "completed"
	RequestStateRejected         RequestState = "rejected"
	RequestStateCancelled        RequestState = "cancelled"
)

// RequestType enumerates supported service-request categories.
type RequestType string

const (
	RequestTypeSoftware RequestType = "software"
	RequestTypeHardware RequestType = "hardware"
	RequestTypeAccess   RequestType = "access"
	RequestTypeAccount  RequestType = "account"
	RequestTypeEmail    RequestType = "email"
	RequestTypeOther    RequestType = "other"
)

// Valid reports whether the request type is a known category.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeSoftware, RequestTypeHardware, RequestTypeAccess,
		RequestTypeAccount, RequestTypeEmail, RequestTypeOther:
		return true
	}
	return false
}

// ServiceRequest is the aggregate for the approval + fulfillment workflow.
type ServiceRequest struct {
	ID          string
	Number      string
	Title       string
	Description string
	Location    string
	RequestType RequestType

	RequestedAssetType *AssetType
	AllocatedAssetID   *string

	RequesterID string
	ApproverID  *string
	AssigneeID  *string

	State RequestState

	ApprovalNotes string
	ApprovedAt    *time.Time
	RejectedAt    *time.Time

	FulfillmentNotes string
	CompletedAt      *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the request workflow defines no further
// transitions from the current state.
func (r *ServiceRequest) Terminal() bool {
	switch r.State {
	case RequestStateCompleted, RequestStateRejected, RequestStateCancelled:
		return true
	}
	return false
}
