// internal/domain/inventory/entity.go
package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MovementType represents the type of stock movement
type MovementType string

const (
	MovementTypeInward     MovementType = "inward"     // Purchase, good return, reschedule re-injection
	MovementTypeOutward    MovementType = "outward"    // Pack deduction
	MovementTypeDamage     MovementType = "damage"     // Write-off, or damaged return logged without stock change
	MovementTypeAdjustment MovementType = "adjustment" // Stock count correction, opening stock
)

// Reference types recorded on movements
const (
	ReferencePurchase        = "purchase"
	ReferenceOrder           = "order"
	ReferenceOrderReschedule = "order_reschedule"
	ReferenceReturn          = "return"
	ReferenceDamageWriteOff  = "damage_writeoff"
	ReferenceStockCount      = "stock_count"
	ReferenceOpeningStock    = "opening_stock"
)

// ErrAppendOnly is returned when something tries to edit or delete a ledger row
var ErrAppendOnly = errors.New("stock movements are append-only")

// ProductVariant is a sellable SKU. CurrentStock is a cached aggregate of its
// movements and is only written by the Ledger.
type ProductVariant struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ProductName       string          `gorm:"not null;size:255" json:"product_name"`
	SKU               string          `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name              string          `gorm:"not null;size:255" json:"name"`
	CurrentStock      int             `gorm:"not null;default:0;check:current_stock >= 0" json:"current_stock"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"cost_price"`
	LowStockThreshold int             `gorm:"not null;default:5" json:"low_stock_threshold"`
	IsActive          bool            `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StockMovement is one immutable ledger entry
type StockMovement struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	VariantID     uint         `gorm:"not null;index" json:"variant_id"`
	MovementType  MovementType `gorm:"not null;size:20" json:"movement_type"`
	Quantity      int          `gorm:"not null" json:"quantity"` // units involved, always positive
	Delta         int          `gorm:"not null" json:"delta"`    // signed effect on current_stock
	StockBefore   int          `gorm:"not null" json:"stock_before"`
	StockAfter    int          `gorm:"not null" json:"stock_after"`
	ReferenceType string       `gorm:"size:50;index:idx_stock_movements_reference" json:"reference_type"`
	ReferenceID   uint         `gorm:"index:idx_stock_movements_reference" json:"reference_id"`
	Notes         string       `gorm:"type:text" json:"notes"`
	CreatedBy     uint         `gorm:"not null;index" json:"created_by"`
	CreatedAt     time.Time    `gorm:"index" json:"created_at"`
}

// Alert types
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
)

// StockAlert represents low stock alerts
type StockAlert struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	VariantID  uint       `gorm:"not null;index" json:"variant_id"`
	AlertType  string     `gorm:"not null;size:20" json:"alert_type"`
	Message    string     `gorm:"type:text" json:"message"`
	IsResolved bool       `gorm:"not null" json:"is_resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName overrides
func (ProductVariant) TableName() string { return "product_variants" }
func (StockMovement) TableName() string  { return "stock_movements" }
func (StockAlert) TableName() string     { return "stock_alerts" }

// BeforeUpdate keeps the ledger append-only
func (m *StockMovement) BeforeUpdate(tx *gorm.DB) error {
	return ErrAppendOnly
}

// BeforeDelete keeps the ledger append-only
func (m *StockMovement) BeforeDelete(tx *gorm.DB) error {
	return ErrAppendOnly
}

// IsLowStock checks if stock is at or below the threshold
func (v *ProductVariant) IsLowStock() bool {
	return v.CurrentStock <= v.LowStockThreshold
}

// IsOutOfStock checks if the variant is out of stock
func (v *ProductVariant) IsOutOfStock() bool {
	return v.CurrentStock <= 0
}
