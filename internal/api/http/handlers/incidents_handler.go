package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/merturl4576/pyservice-mini-itsm/internal/api/dto"
	"github.com/merturl4576/pyservice-mini-itsm/internal/auth"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

// IncidentsHandler manages incident endpoints.
type IncidentsHandler struct {
	service *service.IncidentService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(incidentService *service.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{service: incidentService}
}

// Create POST /incidents.
func (h *IncidentsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.CreateIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	inc, err := h.service.Create(c.Context(), principal.User.ID, service.IncidentCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Impact:      domain.Impact(req.Impact),
		Urgency:     domain.Urgency(req.Urgency),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.IncidentDetailView(inc, h.service.SLAStatus(inc))})
}

// List GET /incidents.
func (h *IncidentsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}

	filter := parseIncidentQuery(c)
	// Plain staff only see what they reported.
	if !principal.Role.SupportRole() && !principal.Role.ApproverRole() {
		callerID := principal.User.ID
		filter.CallerID = &callerID
	}

	incidents, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.IncidentSummary, 0, len(incidents))
	for i := range incidents {
		items = append(items, dto.IncidentSummaryView(&incidents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /incidents/:id.
func (h *IncidentsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	inc, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	if !principal.Role.SupportRole() && !principal.Role.ApproverRole() && inc.CallerID != principal.User.ID {
		return apperrors.NewForbidden("access denied")
	}
	return c.JSON(fiber.Map{"data": dto.IncidentDetailView(inc, h.service.SLAStatus(inc))})
}

// Claim POST /incidents/:id/claim.
func (h *IncidentsHandler) Claim(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	inc, err := h.service.Claim(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.IncidentDetailView(inc, h.service.SLAStatus(inc))})
}

// Complete POST /incidents/:id/complete.
func (h *IncidentsHandler) Complete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.NotesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Notes) == "" {
		return apperrors.NewValidationError("notes required", nil)
	}
	inc, err := h.service.Complete(c.Context(), principal.User.ID, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.IncidentDetailView(inc, h.service.SLAStatus(inc))})
}

// Escalate POST /incidents/:id/escalate.
func (h *IncidentsHandler) Escalate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.NotesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	inc, err := h.service.Escalate(c.Context(), principal.User.ID, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.IncidentDetailView(inc, h.service.SLAStatus(inc))})
}

// Reclassify PATCH /incidents/:id/classification.
func (h *IncidentsHandler) Reclassify(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.ReclassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	inc, err := h.service.Reclassify(c.Context(), principal.User.ID, c.Params("id"),
		domain.Impact(req.Impact), domain.Urgency(req.Urgency))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.IncidentDetailView(inc, h.service.SLAStatus(inc))})
}

func parseIncidentQuery(c *fiber.Ctx) service.IncidentListFilter {
	filter := service.IncidentListFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	for _, raw := range splitQuery(c.Query("state")) {
		filter.States = append(filter.States, domain.IncidentState(raw))
	}
	for _, raw := range splitQuery(c.Query("priority")) {
		if p, err := strconv.Atoi(raw); err == nil {
			filter.Priorities = append(filter.Priorities, domain.Priority(p))
		}
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if breached := c.Query("breached"); breached != "" {
		val := breached == "true"
		filter.Breached = &val
	}
	return filter
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
