package dto

import (
	"time"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// CreateAssetRequest payload.
type CreateAssetRequest struct {
	Name         string           `json:"name"`
	AssetType    domain.AssetType `json:"asset_type"`
	SerialNumber *string          `json:"serial_number"`
	ModelName    string           `json:"model_name"`
	Manufacturer string           `json:"manufacturer"`
	Location     string           `json:"location"`
	Notes        string           `json:"notes"`
}

// AssetResponse response.
type AssetResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	AssetType    domain.AssetType   `json:"asset_type"`
	SerialNumber *string            `json:"serial_number"`
	ModelName    string             `json:"model_name"`
	Manufacturer string             `json:"manufacturer"`
	Status       domain.AssetStatus `json:"status"`
	AssignedTo   *string            `json:"assigned_to"`
	Location     string             `json:"location"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// InventoryResponse counts stock for one asset type.
type InventoryResponse struct {
	AssetType domain.AssetType `json:"asset_type"`
	Quantity  int              `json:"quantity"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NotificationResponse response.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Link      string                  `json:"link"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
}

// AssetView maps a domain asset for responses.
func AssetView(a *domain.Asset) AssetResponse {
	return AssetResponse{
		ID:           a.ID,
		Name:         a.Name,
		AssetType:    a.AssetType,
		SerialNumber: a.SerialNumber,
		ModelName:    a.ModelName,
		Manufacturer: a.Manufacturer,
		Status:       a.Status,
		AssignedTo:   a.AssignedTo,
		Location:     a.Location,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// InventoryView maps an inventory row.
func InventoryView(row domain.InventoryRow) InventoryResponse {
	return InventoryResponse{
		AssetType: row.AssetType,
		Quantity:  row.Quantity,
		UpdatedAt: row.UpdatedAt,
	}
}

// NotificationView maps a notification.
func NotificationView(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
