package service

import (
	"context"
	"strings"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

// AssetService manages the asset registry and the stock counters behind
// hardware auto-approval.
type AssetService struct {
	assets repository.AssetRepository
}

// AssetCreateInput describes asset registration payload.
type AssetCreateInput struct {
	Name         string
	AssetType    domain.AssetType
	SerialNumber *string
	ModelName    string
	Manufacturer string
	Location     string
	Notes        string
}

// NewAssetService constructs the service.
func NewAssetService(assets repository.AssetRepository) *AssetService {
	return &AssetService{assets: assets}
}

// Create registers an asset as in-stock.
func (s *AssetService) Create(ctx context.Context, input AssetCreateInput) (*domain.Asset, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	if !input.AssetType.Valid() {
		return nil, apperrors.NewValidationError("unknown asset type", map[string]any{
			"asset_type": string(input.AssetType),
		})
	}
	asset := &domain.Asset{
		Name:         strings.TrimSpace(input.Name),
		AssetType:    input.AssetType,
		SerialNumber: input.SerialNumber,
		ModelName:    strings.TrimSpace(input.ModelName),
		Manufacturer: strings.TrimSpace(input.Manufacturer),
		Status:       domain.AssetStatusInStock,
		Location:     strings.TrimSpace(input.Location),
		Notes:        input.Notes,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, err
	}
	if err := s.assets.IncrementInventory(ctx, asset.AssetType); err != nil {
		return nil, err
	}
	return asset, nil
}

// Get fetches an asset by id.
func (s *AssetService) Get(ctx context.Context, id string) (*domain.Asset, error) {
	return s.assets.GetByID(ctx, id)
}

// List returns assets matching the filter.
func (s *AssetService) List(ctx context.Context, filter repository.AssetFilter) ([]domain.Asset, error) {
	return s.assets.ListWithFilter(ctx, filter)
}

// Return puts an assigned asset back in stock and restores its counter.
func (s *AssetService) Return(ctx context.Context, assetID string) error {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.Status != domain.AssetStatusAssigned {
		return apperrors.NewConflict("asset is not assigned", map[string]any{
			"asset_id": assetID,
			"status":   string(asset.Status),
		})
	}
	if err := s.assets.ReturnToStock(ctx, assetID); err != nil {
		return err
	}
	return s.assets.IncrementInventory(ctx, asset.AssetType)
}

// Inventory returns the remaining stock per asset type.
func (s *AssetService) Inventory(ctx context.Context) ([]domain.InventoryRow, error) {
	return s.assets.ListInventory(ctx)
}
