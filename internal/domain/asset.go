package domain

import "time"

// AssetType enumerates CMDB asset categories.
type AssetType string

const (
	AssetTypeLaptop   AssetType = "laptop"
	AssetTypeDesktop  AssetType = "desktop"
	AssetTypeMonitor  AssetType = "monitor"
	AssetTypePhone    AssetType = "phone"
	AssetTypePrinter  AssetType = "printer"
	AssetTypeNetwork  AssetType = "network"
	AssetTypeSoftware AssetType = "software"
	AssetTypeOther    AssetType = "other"
)

// Valid reports whether the asset type is a known category.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeLaptop, AssetTypeDesktop, AssetTypeMonitor, AssetTypePhone,
		AssetTypePrinter, AssetTypeNetwork, AssetTypeSoftware, AssetTypeOther:
		return true
	}
	return false
}

// AssetStatus enumerates asset lifecycle states.
type AssetStatus string

const (
	AssetStatusInStock     AssetStatus = "in_stock"
	AssetStatusAssigned    AssetStatus = "assigned"
	AssetStatusUnderReview AssetStatus = "under_review"
	AssetStatusInRepair    AssetStatus = "in_repair"
	AssetStatusRetired     AssetStatus = "retired"
)

// Asset is a tracked configuration item.
type Asset struct {
	ID           string
	Name         string
	AssetType    AssetType
	SerialNumber *string
	ModelName    string
	Manufacturer string
	Status       AssetStatus
	AssignedTo   *string
	Location     string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InventoryRow counts remaining stock for one asset type.
// Quantity never goes below zero; decrement is conditional at the store.
type InventoryRow struct {
	AssetType AssetType
	Quantity  int
	UpdatedAt time.Time
}
