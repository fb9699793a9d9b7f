package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/pkg/clock"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

// IncidentService coordinates the incident workflow.
type IncidentService struct {
	incidents  repository.IncidentRepository
	sequences  repository.SequenceRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// IncidentDependencies bundles collaborators for the incident service.
type IncidentDependencies struct {
	IncidentRepo repository.IncidentRepository
	SequenceRepo repository.SequenceRepository
	UserRepo     repository.UserRepository
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
}

// IncidentCreateInput describes incident creation payload.
type IncidentCreateInput struct {
	Title       string
	Description string
	Location    string
	Impact      domain.Impact
	Urgency     domain.Urgency
}

// IncidentListFilter describes listing filters.
type IncidentListFilter struct {
	States     []domain.IncidentState
	Priorities []domain.Priority
	AssigneeID *string
	CallerID   *string
	Breached   *bool
	Limit      int
	Offset     int
}

// NewIncidentService constructs the service.
func NewIncidentService(deps IncidentDependencies) *IncidentService {
	svc := &IncidentService{
		incidents:  deps.IncidentRepo,
		sequences:  deps.SequenceRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
	}
	if svc.clock == nil {
		svc.clock = clock.System()
	}
	return svc
}

// Create opens a new incident. Priority is derived from impact and
// urgency, and the SLA due date is fixed from priority at this moment.
func (s *IncidentService) Create(ctx context.Context, callerID string, input IncidentCreateInput) (*domain.Incident, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	if !input.Impact.Valid() || !input.Urgency.Valid() {
		return nil, apperrors.NewValidationError("impact and urgency must be between 1 and 3", map[string]any{
			"impact":  int(input.Impact),
			"urgency": int(input.Urgency),
		})
	}

	number, err := s.sequences.NextNumber(ctx, repository.KindIncident)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	priority := domain.CalculatePriority(input.Impact, input.Urgency)
	due := domain.DueDate(priority, now)

	inc := &domain.Incident{
		Number:      number,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		CallerID:    callerID,
		Impact:      input.Impact,
		Urgency:     input.Urgency,
		Priority:    priority,
		State:       domain.IncidentStateNew,
		DueDate:     &due,
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventIncidentCreated,
		TicketID: inc.ID,
		Actor:    events.UserActor(callerID),
		Payload: events.IncidentCreatedPayload{
			Number:   inc.Number,
			Title:    inc.Title,
			Priority: inc.Priority,
			CallerID: inc.CallerID,
			DueDate:  inc.DueDate,
		},
	})
	return inc, nil
}

// Claim moves an incident to in_progress and assigns it to the actor.
func (s *IncidentService) Claim(ctx context.Context, actorID, incidentID string) (*domain.Incident, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	var oldState domain.IncidentState
	inc, err := s.mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if !domain.IncidentClaimable(inc.State, inc.AssigneeID) {
			return claimFailure(inc)
		}
		oldState = inc.State
		inc.AssigneeID = &actorID
		inc.State = domain.IncidentStateInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventIncidentClaimed,
		TicketID: inc.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.IncidentStateChangedPayload{
			Number:     inc.Number,
			OldState:   oldState,
			NewState:   inc.State,
			CallerID:   inc.CallerID,
			AssigneeID: inc.AssigneeID,
		},
	})
	return inc, nil
}

// Complete resolves an incident, recording resolution notes.
func (s *IncidentService) Complete(ctx context.Context, actorID, incidentID, notes string) (*domain.Incident, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	var oldState domain.IncidentState
	inc, err := s.mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if !domain.IncidentActionAllowed(domain.ActionComplete, inc.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionComplete), string(inc.State),
				"incident can only be completed while being worked on")
		}
		oldState = inc.State
		now := s.clock.Now()
		inc.ResolutionNotes = strings.TrimSpace(notes)
		inc.ResolvedAt = &now
		inc.State = domain.IncidentStateResolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventIncidentResolved,
		TicketID: inc.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.IncidentStateChangedPayload{
			Number:     inc.Number,
			OldState:   oldState,
			NewState:   inc.State,
			CallerID:   inc.CallerID,
			AssigneeID: inc.AssigneeID,
			Notes:      inc.ResolutionNotes,
		},
	})
	return inc, nil
}

// Escalate flags an in-progress incident as needing help.
func (s *IncidentService) Escalate(ctx context.Context, actorID, incidentID, notes string) (*domain.Incident, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	return s.escalate(ctx, events.UserActor(actorID), incidentID, notes)
}

// EscalateBySystem is the sweeper's entry point for staleness
// escalation. The resulting event carries no human actor.
func (s *IncidentService) EscalateBySystem(ctx context.Context, incidentID, notes string) (*domain.Incident, error) {
	return s.escalate(ctx, events.SystemActor(), incidentID, notes)
}

func (s *IncidentService) escalate(ctx context.Context, actor events.Actor, incidentID, notes string) (*domain.Incident, error) {
	var oldState domain.IncidentState
	inc, err := s.mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if !domain.IncidentActionAllowed(domain.ActionEscalate, inc.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionEscalate), string(inc.State),
				"only in-progress incidents can be escalated")
		}
		oldState = inc.State
		inc.ResolutionNotes = strings.TrimSpace(notes)
		inc.State = domain.IncidentStateNeedsHelp
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventIncidentEscalated,
		TicketID: inc.ID,
		Actor:    actor,
		Payload: events.IncidentStateChangedPayload{
			Number:     inc.Number,
			OldState:   oldState,
			NewState:   inc.State,
			CallerID:   inc.CallerID,
			AssigneeID: inc.AssigneeID,
			Notes:      inc.ResolutionNotes,
		},
	})
	return inc, nil
}

// Reclassify updates impact and urgency on an open incident, deriving a
// fresh priority. The due date fixed at creation is left untouched.
func (s *IncidentService) Reclassify(ctx context.Context, actorID, incidentID string, impact domain.Impact, urgency domain.Urgency) (*domain.Incident, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	if !impact.Valid() || !urgency.Valid() {
		return nil, apperrors.NewValidationError("impact and urgency must be between 1 and 3", map[string]any{
			"impact":  int(impact),
			"urgency": int(urgency),
		})
	}

	var oldPriority domain.Priority
	inc, err := s.mutate(ctx, incidentID, func(inc *domain.Incident) error {
		if inc.Terminal() {
			return apperrors.NewIllegalTransition("reclassify", string(inc.State),
				"terminal incidents cannot be reclassified")
		}
		oldPriority = inc.Priority
		inc.Impact = impact
		inc.Urgency = urgency
		inc.Priority = domain.CalculatePriority(impact, urgency)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if inc.Priority != oldPriority {
		s.publish(ctx, events.Event{
			Type:     events.EventIncidentReclassified,
			TicketID: inc.ID,
			Actor:    events.UserActor(actorID),
			Payload: events.IncidentReclassifiedPayload{
				Number:      inc.Number,
				OldPriority: oldPriority,
				NewPriority: inc.Priority,
				Impact:      inc.Impact,
				Urgency:     inc.Urgency,
			},
		})
	}
	return inc, nil
}

// Get fetches an incident by id.
func (s *IncidentService) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return s.incidents.GetByID(ctx, id)
}

// GetByNumber fetches an incident by its INC number.
func (s *IncidentService) GetByNumber(ctx context.Context, number string) (*domain.Incident, error) {
	return s.incidents.GetByNumber(ctx, number)
}

// SLAStatus evaluates the incident's SLA standing against the clock.
func (s *IncidentService) SLAStatus(inc *domain.Incident) domain.SLAState {
	if inc.DueDate == nil {
		return domain.SLAState{Kind: domain.SLAOnTime}
	}
	return domain.EvaluateSLA(*inc.DueDate, s.clock.Now(), inc.Terminal(), inc.SLABreached)
}

// List returns incidents matching the filter.
func (s *IncidentService) List(ctx context.Context, filter IncidentListFilter) ([]domain.Incident, error) {
	return s.incidents.ListWithFilter(ctx, repository.IncidentFilter{
		States:     filter.States,
		Priorities: filter.Priorities,
		AssigneeID: filter.AssigneeID,
		CallerID:   filter.CallerID,
		Breached:   filter.Breached,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// mutate loads the incident, applies fn and saves under optimistic
// versioning. On a version conflict it reloads and retries once; a
// second conflict surfaces as a transient failure.
func (s *IncidentService) mutate(ctx context.Context, id string, fn func(*domain.Incident) error) (*domain.Incident, error) {
	for attempt := 0; attempt < 2; attempt++ {
		inc, err := s.incidents.GetByID(ctx, id)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if err := fn(inc); err != nil {
			return nil, err
		}
		err = s.incidents.UpdateVersioned(ctx, inc)
		if err == nil {
			return inc, nil
		}
		if err != repository.ErrVersionConflict {
			return nil, err
		}
	}
	return nil, apperrors.NewConcurrencyConflict("incident", map[string]any{"id": id})
}

func (s *IncidentService) requireSupport(ctx context.Context, actorID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !actor.Role.SupportRole() {
		return apperrors.NewForbidden("support role required")
	}
	return nil
}

func (s *IncidentService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func claimFailure(inc *domain.Incident) error {
	reason := "incident cannot be claimed in its current state"
	if inc.AssigneeID != nil && inc.State != domain.IncidentStateNeedsHelp {
		reason = fmt.Sprintf("cannot claim: already assigned to %s", *inc.AssigneeID)
	}
	return apperrors.NewIllegalTransition(string(domain.ActionClaim), string(inc.State), reason)
}
