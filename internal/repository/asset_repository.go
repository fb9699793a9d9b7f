package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// AssetFilter captures asset listing parameters.
type AssetFilter struct {
	AssetType  *domain.AssetType
	Status     *domain.AssetStatus
	AssignedTo *string
	Limit      int
	Offset     int
}

// AssetRepository encapsulates asset and inventory persistence.
type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) error
	GetByID(ctx context.Context, id string) (*domain.Asset, error)
	ListWithFilter(ctx context.Context, filter AssetFilter) ([]domain.Asset, error)
	// AllocateAvailable atomically picks one in_stock unassigned asset of the
	// given type and marks it assigned to userID. Returns (nil, nil) when no
	// asset is available.
	AllocateAvailable(ctx context.Context, assetType domain.AssetType, userID string) (*domain.Asset, error)
	ReturnToStock(ctx context.Context, assetID string) error
	// DecrementInventory reduces stock by one, failing (false) when the
	// counter is already zero. Never goes negative.
	DecrementInventory(ctx context.Context, assetType domain.AssetType) (bool, error)
	IncrementInventory(ctx context.Context, assetType domain.AssetType) error
	ListInventory(ctx context.Context) ([]domain.InventoryRow, error)
}

type assetRepository struct {
	pool *pgxpool.Pool
}

// NewAssetRepository instantiates repository.
func NewAssetRepository(pool *pgxpool.Pool) AssetRepository {
	return &assetRepository{pool: pool}
}

const assetColumns = `id, name, asset_type, serial_number, model_name, manufacturer,
               status, assigned_to, location, notes, created_at, updated_at`

func (r *assetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	const query = `
        INSERT INTO assets (name, asset_type, serial_number, model_name, manufacturer,
            status, assigned_to, location, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		asset.Name,
		asset.AssetType,
		asset.SerialNumber,
		asset.ModelName,
		asset.Manufacturer,
		asset.Status,
		asset.AssignedTo,
		asset.Location,
		asset.Notes,
	).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)
}

func (r *assetRepository) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id=$1`
	return scanAsset(r.pool.QueryRow(ctx, query, id))
}

func (r *assetRepository) ListWithFilter(ctx context.Context, filter AssetFilter) ([]domain.Asset, error) {
	base := `SELECT ` + assetColumns + ` FROM assets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AssetType != nil {
		args = append(args, *filter.AssetType)
		clauses = append(clauses, fmt.Sprintf("asset_type=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *asset)
	}
	return result, rows.Err()
}

// AllocateAvailable uses a single conditional UPDATE with a locked subselect,
// so two concurrent requests for the same asset type can never claim the same
// physical asset.
func (r *assetRepository) AllocateAvailable(ctx context.Context, assetType domain.AssetType, userID string) (*domain.Asset, error) {
	query := `
        UPDATE assets SET status='assigned', assigned_to=$1, updated_at=NOW()
        WHERE id = (
            SELECT id FROM assets
            WHERE asset_type=$2 AND status='in_stock' AND assigned_to IS NULL
            ORDER BY created_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + assetColumns
	asset, err := scanAsset(r.pool.QueryRow(ctx, query, userID, assetType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *assetRepository) ReturnToStock(ctx context.Context, assetID string) error {
	const query = `
        UPDATE assets SET status='in_stock', assigned_to=NULL, updated_at=NOW()
        WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, assetID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assetRepository) DecrementInventory(ctx context.Context, assetType domain.AssetType) (bool, error) {
	const query = `
        UPDATE asset_inventory SET quantity = quantity - 1, updated_at=NOW()
        WHERE asset_type=$1 AND quantity > 0`
	cmd, err := r.pool.Exec(ctx, query, assetType)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// IncrementInventory adds one unit of stock, creating the counter row
// for a type seen for the first time.
func (r *assetRepository) IncrementInventory(ctx context.Context, assetType domain.AssetType) error {
	const query = `
        INSERT INTO asset_inventory (asset_type, quantity)
        VALUES ($1, 1)
        ON CONFLICT (asset_type)
        DO UPDATE SET quantity = asset_inventory.quantity + 1, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query, assetType)
	return err
}

func (r *assetRepository) ListInventory(ctx context.Context) ([]domain.InventoryRow, error) {
	const query = `SELECT asset_type, quantity, updated_at FROM asset_inventory ORDER BY asset_type`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InventoryRow
	for rows.Next() {
		var row domain.InventoryRow
		if err := rows.Scan(&row.AssetType, &row.Quantity, &row.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var asset domain.Asset
	if err := row.Scan(
		&asset.ID,
		&asset.Name,
		&asset.AssetType,
		&asset.SerialNumber,
		&asset.ModelName,
		&asset.Manufacturer,
		&asset.Status,
		&asset.AssignedTo,
		&asset.Location,
		&asset.Notes,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &asset, nil
}
