package domain

import "time"

// IncidentState enumerates incident lifecycle states.
type IncidentState string

const (
	IncidentStateNew        IncidentState = "new"
	IncidentStateInProgress IncidentState = "in_progress"
	IncidentStateOnHold     IncidentState = "on_hold"
	IncidentStateNeedsHelp  IncidentState = "needs_help"
	IncidentStateResolved   IncidentState = "resolved"
	IncidentStateClosed     IncidentState = "closed"
)

// Impact measures how widely an incident is felt: 1 enterprise-wide,
// 2 department-wide, 3 individual user.
type Impact int

// Urgency measures how time-sensitive an incident is: 1 critical business
// function, 2 normal, 3 non-critical.
type Urgency int

const (
	ImpactHigh   Impact = 1
	ImpactMedium Impact = 2
	ImpactLow    Impact = 3

	UrgencyHigh   Urgency = 1
	UrgencyMedium Urgency = 2
	UrgencyLow    Urgency = 3
)

// Valid reports whether the impact is within the 1..3 scale.
func (i Impact) Valid() bool { return i >= 1 && i <= 3 }

// Valid reports whether the urgency is within the 1..3 scale.
func (u Urgency) Valid() bool { return u >= 1 && u <= 3 }

// Incident is the aggregate for unplanned interruptions.
type Incident struct {
	ID          string
	Number      string
	Title       string
	Description string
	Location    string

	CallerID   string
	AssigneeID *string

	Impact   Impact
	Urgency  Urgency
	Priority Priority

	State IncidentState

	DueDate     *time.Time
	SLABreached bool

	ResolutionNotes string
	ResolvedAt      *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the incident workflow defines no further
// transitions from the current state.
func (i *Incident) Terminal() bool {
	return i.State == IncidentStateResolved || i.State == IncidentStateClosed
}
