package dto

import (
	"time"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// CreateIncidentRequest payload.
type CreateIncidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Impact      int    `json:"impact"`
	Urgency     int    `json:"urgency"`
}

// ReclassifyRequest payload for impact/urgency edits.
type ReclassifyRequest struct {
	Impact  int `json:"impact"`
	Urgency int `json:"urgency"`
}

// NotesRequest payload for complete and escalate.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// IncidentSummary response.
type IncidentSummary struct {
	ID          string                `json:"id"`
	Number      string                `json:"number"`
	Title       string                `json:"title"`
	State       domain.IncidentState  `json:"state"`
	Priority    domain.Priority       `json:"priority"`
	AssigneeID  *string               `json:"assignee_id"`
	DueDate     *time.Time            `json:"due_date"`
	SLABreached bool                  `json:"sla_breached"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// IncidentDetail response.
type IncidentDetail struct {
	IncidentSummary
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	CallerID        string     `json:"caller_id"`
	Impact          int        `json:"impact"`
	Urgency         int        `json:"urgency"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	SLAStatus       string     `json:"sla_status"`
}

// IncidentSummaryView maps a domain incident for list responses.
func IncidentSummaryView(inc *domain.Incident) IncidentSummary {
	return IncidentSummary{
		ID:          inc.ID,
		Number:      inc.Number,
		Title:       inc.Title,
		State:       inc.State,
		Priority:    inc.Priority,
		AssigneeID:  inc.AssigneeID,
		DueDate:     inc.DueDate,
		SLABreached: inc.SLABreached,
		CreatedAt:   inc.CreatedAt,
		UpdatedAt:   inc.UpdatedAt,
	}
}

// IncidentDetailView maps a domain incident plus its SLA evaluation.
func IncidentDetailView(inc *domain.Incident, sla domain.SLAState) IncidentDetail {
	return IncidentDetail{
		IncidentSummary: IncidentSummaryView(inc),
		Description:     inc.Description,
		Location:        inc.Location,
		CallerID:        inc.CallerID,
		Impact:          int(inc.Impact),
		Urgency:         int(inc.Urgency),
		ResolutionNotes: inc.ResolutionNotes,
		ResolvedAt:      inc.ResolvedAt,
		SLAStatus:       sla.String(),
	}
}
