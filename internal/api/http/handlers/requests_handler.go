package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/merturl4576/pyservice-mini-itsm/internal/api/dto"
	"github.com/merturl4576/pyservice-mini-itsm/internal/auth"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

// RequestsHandler manages service-request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	record, err := h.service.CreateDraft(c.Context(), principal.User.ID, service.RequestCreateInput{
		Title:              req.Title,
		Description:        req.Description,
		Location:           req.Location,
		RequestType:        req.RequestType,
		RequestedAssetType: req.RequestedAssetType,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.RequestDetailView(record)})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}

	filter := service.RequestListFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	for _, raw := range splitQuery(c.Query("state")) {
		filter.States = append(filter.States, domain.RequestState(raw))
	}
	for _, raw := range splitQuery(c.Query("type")) {
		filter.Types = append(filter.Types, domain.RequestType(raw))
	}
	if !principal.Role.SupportRole() && !principal.Role.ApproverRole() {
		requesterID := principal.User.ID
		filter.RequesterID = &requesterID
	} else if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}

	records, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.RequestSummary, 0, len(records))
	for i := range records {
		items = append(items, dto.RequestSummaryView(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	record, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	if !principal.Role.SupportRole() && !principal.Role.ApproverRole() && record.RequesterID != principal.User.ID {
		return apperrors.NewForbidden("access denied")
	}
	return c.JSON(fiber.Map{"data": dto.RequestDetailView(record)})
}

// Submit POST /requests/:id/submit.
func (h *RequestsHandler) Submit(c *fiber.Ctx) error {
	return h.transition(c, h.service.Submit)
}

// Cancel POST /requests/:id/cancel.
func (h *RequestsHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, h.service.Cancel)
}

// Claim POST /requests/:id/claim.
func (h *RequestsHandler) Claim(c *fiber.Ctx) error {
	return h.transition(c, h.service.Claim)
}

// StartWork POST /requests/:id/start.
func (h *RequestsHandler) StartWork(c *fiber.Ctx) error {
	return h.transition(c, h.service.StartWork)
}

// Assign POST /requests/:id/assign.
func (h *RequestsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AssigneeID == "" {
		return apperrors.NewValidationError("assignee_id required", nil)
	}
	record, err := h.service.Assign(c.Context(), principal.User.ID, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RequestDetailView(record)})
}

// Approve POST /requests/:id/approve.
func (h *RequestsHandler) Approve(c *fiber.Ctx) error {
	return h.decide(c, h.service.Approve)
}

// Reject POST /requests/:id/reject.
func (h *RequestsHandler) Reject(c *fiber.Ctx) error {
	return h.decide(c, h.service.Reject)
}

// Escalate POST /requests/:id/escalate.
func (h *RequestsHandler) Escalate(c *fiber.Ctx) error {
	return h.decide(c, h.service.Escalate)
}

// Complete POST /requests/:id/complete.
func (h *RequestsHandler) Complete(c *fiber.Ctx) error {
	return h.decide(c, h.service.Complete)
}

func (h *RequestsHandler) transition(c *fiber.Ctx, op func(ctx context.Context, actorID, requestID string) (*domain.ServiceRequest, error)) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	record, err := op(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RequestDetailView(record)})
}

func (h *RequestsHandler) decide(c *fiber.Ctx, op func(ctx context.Context, actorID, requestID, notes string) (*domain.ServiceRequest, error)) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	record, err := op(c.Context(), principal.User.ID, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RequestDetailView(record)})
}
