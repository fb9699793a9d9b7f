package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
)

// Allocation describes a successful automatic asset assignment.
type Allocation struct {
	AssetID   string
	AssetName string
	AssetType domain.AssetType
}

// AssetAllocator reserves stock for hardware requests at submission time.
type AssetAllocator struct {
	assets repository.AssetRepository
	logger *zap.Logger
}

// NewAssetAllocator constructs the allocator.
func NewAssetAllocator(assets repository.AssetRepository, logger *zap.Logger) *AssetAllocator {
	return &AssetAllocator{assets: assets, logger: logger}
}

// TryAutoAssign attempts to reserve one in-stock asset of the requested
// type for the requester. The pick-and-assign is a single conditional
// update, so two concurrent submissions can never win the same asset.
// A nil Allocation with nil error means no stock: the caller routes the
// request to manual approval.
func (a *AssetAllocator) TryAutoAssign(ctx context.Context, assetType domain.AssetType, requesterID string) (*Allocation, error) {
	asset, err := a.assets.AllocateAvailable(ctx, assetType, requesterID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, nil
	}

	// Inventory shadows the asset table; a failed decrement means the
	// counter drifted, which is worth a log line but not a rollback.
	decremented, err := a.assets.DecrementInventory(ctx, assetType)
	if err != nil {
		a.logger.Warn("inventory decrement failed after allocation",
			zap.String("asset_id", asset.ID),
			zap.String("asset_type", string(assetType)),
			zap.Error(err))
	} else if !decremented {
		a.logger.Warn("inventory counter already zero for allocated type",
			zap.String("asset_id", asset.ID),
			zap.String("asset_type", string(assetType)))
	}

	return &Allocation{AssetID: asset.ID, AssetName: asset.Name, AssetType: asset.AssetType}, nil
}

// Release undoes a reservation whose request never reached a saved
// approved state, putting the asset and the stock counter back.
func (a *AssetAllocator) Release(ctx context.Context, alloc *Allocation) {
	if alloc == nil {
		return
	}
	if err := a.assets.ReturnToStock(ctx, alloc.AssetID); err != nil {
		a.logger.Error("failed to return reserved asset to stock",
			zap.String("asset_id", alloc.AssetID),
			zap.String("asset_type", string(alloc.AssetType)),
			zap.Error(err))
		return
	}
	if err := a.assets.IncrementInventory(ctx, alloc.AssetType); err != nil {
		a.logger.Warn("inventory increment failed after release",
			zap.String("asset_id", alloc.AssetID),
			zap.String("asset_type", string(alloc.AssetType)),
			zap.Error(err))
	}
}
