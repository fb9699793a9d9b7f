package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/pkg/clock"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

// autoApprovalNote marks requests approved by stock allocation rather
// than a manager.
const autoApprovalNote = "Auto-approved: Asset available in stock"

// RequestService coordinates the service-request workflow: draft,
// submission with optional auto-approval, manual approval, fulfillment.
type RequestService struct {
	requests   repository.ServiceRequestRepository
	sequences  repository.SequenceRepository
	users      repository.UserRepository
	allocator  *AssetAllocator
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo  repository.ServiceRequestRepository
	SequenceRepo repository.SequenceRepository
	UserRepo     repository.UserRepository
	Allocator    *AssetAllocator
	Dispatcher   events.Dispatcher
	Clock        clock.Clock
}

// RequestCreateInput describes draft creation payload.
type RequestCreateInput struct {
	Title              string
	Description        string
	Location           string
	RequestType        domain.RequestType
	RequestedAssetType *domain.AssetType
}

// RequestListFilter describes listing filters.
type RequestListFilter struct {
	States      []domain.RequestState
	Types       []domain.RequestType
	RequesterID *string
	AssigneeID  *string
	Limit       int
	Offset      int
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	svc := &RequestService{
		requests:   deps.RequestRepo,
		sequences:  deps.SequenceRepo,
		users:      deps.UserRepo,
		allocator:  deps.Allocator,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
	}
	if svc.clock == nil {
		svc.clock = clock.System()
	}
	return svc
}

// CreateDraft opens a service request in draft state.
func (s *RequestService) CreateDraft(ctx context.Context, requesterID string, input RequestCreateInput) (*domain.ServiceRequest, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	if !input.RequestType.Valid() {
		return nil, apperrors.NewValidationError("unknown request type", map[string]any{
			"request_type": string(input.RequestType),
		})
	}
	if input.RequestType == domain.RequestTypeHardware {
		if input.RequestedAssetType == nil || !input.RequestedAssetType.Valid() {
			return nil, apperrors.NewValidationError("hardware requests must name a valid asset type", nil)
		}
	} else if input.RequestedAssetType != nil {
		return nil, apperrors.NewValidationError("asset type applies only to hardware requests", nil)
	}

	number, err := s.sequences.NextNumber(ctx, repository.KindRequest)
	if err != nil {
		return nil, err
	}

	req := &domain.ServiceRequest{
		Number:             number,
		Title:              strings.TrimSpace(input.Title),
		Description:        strings.TrimSpace(input.Description),
		Location:           strings.TrimSpace(input.Location),
		RequestType:        input.RequestType,
		RequestedAssetType: input.RequestedAssetType,
		RequesterID:        requesterID,
		State:              domain.RequestStateDraft,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Submit moves a draft into the approval pipeline. Hardware requests
// with stock on hand are approved on the spot with the asset reserved;
// everything else waits for a manager.
func (s *RequestService) Submit(ctx context.Context, actorID, requestID string) (*domain.ServiceRequest, error) {
	var (
		oldState   domain.RequestState
		allocation *Allocation
	)
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if req.RequesterID != actorID {
			return apperrors.NewForbidden("only the requester may submit")
		}
		if !domain.RequestActionAllowed(domain.ActionSubmit, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionSubmit), string(req.State),
				"only draft requests can be submitted")
		}
		oldState = req.State

		// A retry after a version conflict keeps the asset reserved on
		// the first pass instead of allocating a second one.
		if allocation == nil && req.RequestType == domain.RequestTypeHardware && req.RequestedAssetType != nil {
			alloc, err := s.allocator.TryAutoAssign(ctx, *req.RequestedAssetType, req.RequesterID)
			if err != nil {
				return err
			}
			allocation = alloc
		}

		if allocation != nil {
			now := s.clock.Now()
			req.State = domain.RequestStateApproved
			req.AllocatedAssetID = &allocation.AssetID
			req.ApprovalNotes = autoApprovalNote
			req.ApprovedAt = &now
		} else {
			req.State = domain.RequestStateAwaitingApproval
		}
		return nil
	})
	if err != nil {
		// The reserved asset must not stay assigned to a request that was
		// never saved as approved.
		if allocation != nil {
			s.allocator.Release(ctx, allocation)
		}
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestSubmitted,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
		},
	})
	if allocation != nil {
		s.publish(ctx, events.Event{
			Type:     events.EventRequestApproved,
			TicketID: req.ID,
			Actor:    events.SystemActor(),
			Payload: events.RequestStateChangedPayload{
				Number:      req.Number,
				OldState:    oldState,
				NewState:    req.State,
				RequesterID: req.RequesterID,
				Notes:       req.ApprovalNotes,
			},
		})
		s.publish(ctx, events.Event{
			Type:     events.EventAssetAllocated,
			TicketID: req.ID,
			Actor:    events.SystemActor(),
			Payload: events.AssetAllocatedPayload{
				AssetID:    allocation.AssetID,
				AssetName:  allocation.AssetName,
				AssetType:  allocation.AssetType,
				AssignedTo: req.RequesterID,
			},
		})
	}
	return req, nil
}

// Approve records a manager's decision on a pending request.
func (s *RequestService) Approve(ctx context.Context, approverID, requestID, notes string) (*domain.ServiceRequest, error) {
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if !domain.RequestActionAllowed(domain.ActionApprove, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionApprove), string(req.State),
				"only requests awaiting approval can be approved")
		}
		oldState = req.State
		now := s.clock.Now()
		req.State = domain.RequestStateApproved
		req.ApproverID = &approverID
		req.ApprovalNotes = strings.TrimSpace(notes)
		req.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestApproved,
		TicketID: req.ID,
		Actor:    events.UserActor(approverID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			ApproverID:  req.ApproverID,
			Notes:       req.ApprovalNotes,
		},
	})
	return req, nil
}

// Reject declines a pending request with a reason.
func (s *RequestService) Reject(ctx context.Context, approverID, requestID, notes string) (*domain.ServiceRequest, error) {
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if !domain.RequestActionAllowed(domain.ActionReject, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionReject), string(req.State),
				"only requests awaiting approval can be rejected")
		}
		oldState = req.State
		now := s.clock.Now()
		req.State = domain.RequestStateRejected
		req.ApproverID = &approverID
		req.ApprovalNotes = strings.TrimSpace(notes)
		req.RejectedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestRejected,
		TicketID: req.ID,
		Actor:    events.UserActor(approverID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			ApproverID:  req.ApproverID,
			Notes:       req.ApprovalNotes,
		},
	})
	return req, nil
}

// Cancel withdraws a request before a decision is made.
func (s *RequestService) Cancel(ctx context.Context, actorID, requestID string) (*domain.ServiceRequest, error) {
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if req.RequesterID != actorID {
			return apperrors.NewForbidden("only the requester may cancel")
		}
		if !domain.RequestActionAllowed(domain.ActionCancel, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionCancel), string(req.State),
				"request can no longer be cancelled")
		}
		oldState = req.State
		req.State = domain.RequestStateCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestCancelled,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
		},
	})
	return req, nil
}

// Assign hands an approved request to a specific support engineer.
func (s *RequestService) Assign(ctx context.Context, actorID, requestID, assigneeID string) (*domain.ServiceRequest, error) {
	if err := s.requireApprover(ctx, actorID); err != nil {
		return nil, err
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !assignee.Role.SupportRole() {
		return nil, apperrors.NewValidationError("assignee must hold a support role", map[string]any{
			"assignee_id": assigneeID,
		})
	}

	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if !domain.RequestActionAllowed(domain.ActionAssign, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionAssign), string(req.State),
				"only approved requests can be assigned")
		}
		oldState = req.State
		req.AssigneeID = &assigneeID
		req.State = domain.RequestStateAssigned
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestAssigned,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			AssigneeID:  req.AssigneeID,
		},
	})
	return req, nil
}

// Claim lets a support engineer pick up an approved or stuck request
// and start working on it.
func (s *RequestService) Claim(ctx context.Context, actorID, requestID string) (*domain.ServiceRequest, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if !domain.RequestActionAllowed(domain.ActionClaim, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionClaim), string(req.State),
				"request cannot be claimed in its current state")
		}
		oldState = req.State
		req.AssigneeID = &actorID
		req.State = domain.RequestStateInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestStarted,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			AssigneeID:  req.AssigneeID,
		},
	})
	return req, nil
}

// StartWork moves an assigned request into active fulfillment by its
// assignee.
func (s *RequestService) StartWork(ctx context.Context, actorID, requestID string) (*domain.ServiceRequest, error) {
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if req.AssigneeID == nil || *req.AssigneeID != actorID {
			return apperrors.NewForbidden("only the assignee may start work")
		}
		if !domain.RequestActionAllowed(domain.ActionStartWork, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionStartWork), string(req.State),
				"only assigned requests can be started")
		}
		oldState = req.State
		req.State = domain.RequestStateInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestStarted,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			AssigneeID:  req.AssigneeID,
		},
	})
	return req, nil
}

// Escalate flags an in-progress request as needing help.
func (s *RequestService) Escalate(ctx context.Context, actorID, requestID, notes string) (*domain.ServiceRequest, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if !domain.RequestActionAllowed(domain.ActionEscalate, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionEscalate), string(req.State),
				"only in-progress requests can be escalated")
		}
		oldState = req.State
		req.FulfillmentNotes = strings.TrimSpace(notes)
		req.State = domain.RequestStateNeedsHelp
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestEscalated,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			AssigneeID:  req.AssigneeID,
			Notes:       req.FulfillmentNotes,
		},
	})
	return req, nil
}

// Complete closes out fulfillment with notes.
func (s *RequestService) Complete(ctx context.Context, actorID, requestID, notes string) (*domain.ServiceRequest, error) {
	if err := s.requireSupport(ctx, actorID); err != nil {
		return nil, err
	}
	var oldState domain.RequestState
	req, err := s.mutate(ctx, requestID, func(req *domain.ServiceRequest) error {
		if !domain.RequestActionAllowed(domain.ActionComplete, req.State) {
			return apperrors.NewIllegalTransition(string(domain.ActionComplete), string(req.State),
				"request cannot be completed in its current state")
		}
		oldState = req.State
		now := s.clock.Now()
		req.FulfillmentNotes = strings.TrimSpace(notes)
		req.CompletedAt = &now
		req.State = domain.RequestStateCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventRequestCompleted,
		TicketID: req.ID,
		Actor:    events.UserActor(actorID),
		Payload: events.RequestStateChangedPayload{
			Number:      req.Number,
			OldState:    oldState,
			NewState:    req.State,
			RequesterID: req.RequesterID,
			AssigneeID:  req.AssigneeID,
			Notes:       req.FulfillmentNotes,
		},
	})
	return req, nil
}

// Get fetches a request by id.
func (s *RequestService) Get(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// GetByNumber fetches a request by its REQ number.
func (s *RequestService) GetByNumber(ctx context.Context, number string) (*domain.ServiceRequest, error) {
	return s.requests.GetByNumber(ctx, number)
}

// List returns requests matching the filter.
func (s *RequestService) List(ctx context.Context, filter RequestListFilter) ([]domain.ServiceRequest, error) {
	return s.requests.ListWithFilter(ctx, repository.RequestFilter{
		RequesterID: filter.RequesterID,
		AssigneeID:  filter.AssigneeID,
		States:      filter.States,
		Types:       filter.Types,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// mutate mirrors the incident path: load, apply, save with version
// check, retry once on conflict.
func (s *RequestService) mutate(ctx context.Context, id string, fn func(*domain.ServiceRequest) error) (*domain.ServiceRequest, error) {
	for attempt := 0; attempt < 2; attempt++ {
		req, err := s.requests.GetByID(ctx, id)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if err := fn(req); err != nil {
			return nil, err
		}
		err = s.requests.UpdateVersioned(ctx, req)
		if err == nil {
			return req, nil
		}
		if err != repository.ErrVersionConflict {
			return nil, err
		}
	}
	return nil, apperrors.NewConcurrencyConflict("service_request", map[string]any{"id": id})
}

func (s *RequestService) requireSupport(ctx context.Context, actorID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !actor.Role.SupportRole() {
		return apperrors.NewForbidden("support role required")
	}
	return nil
}

func (s *RequestService) requireApprover(ctx context.Context, actorID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !actor.Role.ApproverRole() {
		return apperrors.NewForbidden("approver role required")
	}
	return nil
}

func (s *RequestService) publish(ctx context.Context, event events.Event) {
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
