package events

import (
	"time"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIncidentCreated      EventType = "incident_created"
	EventIncidentClaimed      EventType = "incident_claimed"
	EventIncidentResolved     EventType = "incident_resolved"
	EventIncidentEscalated    EventType = "incident_escalated"
	EventIncidentReclassified EventType = "incident_reclassified"
	EventSLAWarning           EventType = "sla_warning"
	EventSLABreached          EventType = "sla_breached"
	EventRequestSubmitted     EventType = "request_submitted"
	EventRequestApproved      EventType = "request_approved"
	EventRequestRejected      EventType = "request_rejected"
	EventRequestCancelled     EventType = "request_cancelled"
	EventRequestAssigned      EventType = "request_assigned"
	EventRequestStarted       EventType = "request_started"
	EventRequestEscalated     EventType = "request_escalated"
	EventRequestCompleted     EventType = "request_completed"
	EventAssetAllocated       EventType = "asset_allocated"
)

// Actor encapsulates actor metadata for an event. UserID is nil for
// events emitted by background jobs.
type Actor struct {
	UserID *string `json:"user_id,omitempty"`
	System bool    `json:"system,omitempty"`
}

// UserActor builds an Actor for an authenticated user.
func UserActor(userID string) Actor {
	return Actor{UserID: &userID}
}

// SystemActor attributes an event to the platform itself.
func SystemActor() Actor {
	return Actor{System: true}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IncidentCreatedPayload payload.
type IncidentCreatedPayload struct {
	Number   string          `json:"number"`
	Title    string          `json:"title"`
	Priority domain.Priority `json:"priority"`
	CallerID string          `json:"caller_id"`
	DueDate  *time.Time      `json:"due_date,omitempty"`
}

// IncidentStateChangedPayload covers claim, resolve and escalate
// transitions; old and new states are carried explicitly so consumers
// never have to re-read the record.
type IncidentStateChangedPayload struct {
	Number     string              `json:"number"`
	OldState   domain.IncidentState `json:"old_state"`
	NewState   domain.IncidentState `json:"new_state"`
	CallerID   string              `json:"caller_id"`
	AssigneeID *string             `json:"assignee_id,omitempty"`
	Notes      string              `json:"notes,omitempty"`
}

// IncidentReclassifiedPayload payload.
type IncidentReclassifiedPayload struct {
	Number      string          `json:"number"`
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
	Impact      domain.Impact   `json:"impact"`
	Urgency     domain.Urgency  `json:"urgency"`
}

// SLAWarningPayload payload.
type SLAWarningPayload struct {
	Number     string          `json:"number"`
	Priority   domain.Priority `json:"priority"`
	AssigneeID *string         `json:"assignee_id,omitempty"`
	DueDate    time.Time       `json:"due_date"`
	Remaining  time.Duration   `json:"remaining"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Number     string          `json:"number"`
	Priority   domain.Priority `json:"priority"`
	AssigneeID *string         `json:"assignee_id,omitempty"`
	DueDate    time.Time      `json:"due_date"`
}

// RequestStateChangedPayload covers all service request transitions.
type RequestStateChangedPayload struct {
	Number      string              `json:"number"`
	OldState    domain.RequestState `json:"old_state"`
	NewState    domain.RequestState `json:"new_state"`
	RequesterID string              `json:"requester_id"`
	AssigneeID  *string             `json:"assignee_id,omitempty"`
	ApproverID  *string             `json:"approver_id,omitempty"`
	Notes       string              `json:"notes,omitempty"`
}

// AssetAllocatedPayload payload.
type AssetAllocatedPayload struct {
	AssetID    string           `json:"asset_id"`
	AssetName  string           `json:"asset_name"`
	AssetType  domain.AssetType `json:"asset_type"`
	AssignedTo string           `json:"assigned_to"`
}
