package domain

// TicketAction names a workflow operation on a ticket.
type TicketAction string

const (
	ActionClaim     TicketAction = "claim"
	ActionComplete  TicketAction = "complete"
	ActionEscalate  TicketAction = "escalate"
	ActionSubmit    TicketAction = "submit"
	ActionApprove   TicketAction = "approve"
	ActionReject    TicketAction = "reject"
	ActionCancel    TicketAction = "cancel"
	ActionAssign    TicketAction = "assign"
	ActionStartWork TicketAction = "start_work"
)

// incidentActionSources lists the states an incident action may fire from.
// The target state is fixed per action.
var incidentActionSources = map[TicketAction][]IncidentState{
	ActionClaim:    {IncidentStateNew, IncidentStateNeedsHelp},
	ActionComplete: {IncidentStateInProgress, IncidentStateNeedsHelp},
	ActionEscalate: {IncidentStateInProgress},
}

// IncidentActionAllowed reports whether action may fire from state.
func IncidentActionAllowed(action TicketAction, state IncidentState) bool {
	for _, s := range incidentActionSources[action] {
		if s == state {
			return true
		}
	}
	return false
}

// IncidentClaimable reports whether an incident can be picked up. A new
// incident must still be unassigned; a needs_help ticket may be
// re-claimed regardless of who held it before.
func IncidentClaimable(state IncidentState, assigneeID *string) bool {
	if !IncidentActionAllowed(ActionClaim, state) {
		return false
	}
	return assigneeID == nil || state == IncidentStateNeedsHelp
}

// requestActionSources lists the states a request action may fire from.
var requestActionSources = map[TicketAction][]RequestState{
	ActionSubmit:    {RequestStateDraft},
	ActionApprove:   {RequestStateAwaitingApproval},
	ActionReject:    {RequestStateAwaitingApproval},
	ActionCancel:    {RequestStateDraft, RequestStateAwaitingApproval},
	ActionAssign:    {RequestStateApproved, RequestStateAssigned},
	ActionClaim:     {RequestStateApproved, RequestStateAssigned, RequestStateNeedsHelp},
	ActionStartWork: {RequestStateAssigned},
	ActionEscalate:  {RequestStateInProgress},
	ActionComplete:  {RequestStateAssigned, RequestStateInProgress, RequestStateNeedsHelp},
}

// RequestActionAllowed reports whether action may fire from state.
func RequestActionAllowed(action TicketAction, state RequestState) bool {
	for _, s := range requestActionSources[action] {
		if s == state {
			return true
		}
	}
	return false
}
