package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/merturl4576/pyservice-mini-itsm/internal/api/dto"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

// AssetsHandler manages asset and inventory endpoints.
type AssetsHandler struct {
	service *service.AssetService
}

// NewAssetsHandler constructs handler.
func NewAssetsHandler(assetService *service.AssetService) *AssetsHandler {
	return &AssetsHandler{service: assetService}
}

// Create POST /assets.
func (h *AssetsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateAssetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	asset, err := h.service.Create(c.Context(), service.AssetCreateInput{
		Name:         req.Name,
		AssetType:    req.AssetType,
		SerialNumber: req.SerialNumber,
		ModelName:    req.ModelName,
		Manufacturer: req.Manufacturer,
		Location:     req.Location,
		Notes:        req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AssetView(asset)})
}

// List GET /assets.
func (h *AssetsHandler) List(c *fiber.Ctx) error {
	filter := repository.AssetFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("asset_type"); raw != "" {
		assetType := domain.AssetType(raw)
		filter.AssetType = &assetType
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.AssetStatus(raw)
		filter.Status = &status
	}
	assets, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AssetResponse, 0, len(assets))
	for i := range assets {
		items = append(items, dto.AssetView(&assets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /assets/:id.
func (h *AssetsHandler) Get(c *fiber.Ctx) error {
	asset, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.AssetView(asset)})
}

// Return POST /assets/:id/return.
func (h *AssetsHandler) Return(c *fiber.Ctx) error {
	if err := h.service.Return(c.Context(), c.Params("id")); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"returned": true}})
}

// Inventory GET /assets/inventory.
func (h *AssetsHandler) Inventory(c *fiber.Ctx) error {
	rows, err := h.service.Inventory(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.InventoryResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.InventoryView(row))
	}
	return c.JSON(fiber.Map{"data": items})
}
