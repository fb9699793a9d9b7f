package domain

import "time"

// NotificationType enumerates in-app notification categories.
type NotificationType string

const (
	NotifyIncidentAssigned  NotificationType = "incident_assigned"
	NotifyIncidentResolved  NotificationType = "incident_resolved"
	NotifyIncidentEscalated NotificationType = "incident_escalated"
	NotifySLAWarning        NotificationType = "sla_warning"
	NotifySLABreached       NotificationType = "sla_breached"
	NotifyRequestSubmitted  NotificationType = "request_submitted"
	NotifyRequestApproved   NotificationType = "request_approved"
	NotifyRequestRejected   NotificationType = "request_rejected"
	NotifyRequestCompleted  NotificationType = "request_completed"
	NotifyAssetAssigned     NotificationType = "asset_assigned"
	NotifyGeneral           NotificationType = "general"
)

// Notification is an in-app message for a single user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}
