// internal/domain/purchase/entity.go
package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus represents the payment state of a vendor bill
type PurchaseStatus string

const (
	PurchaseStatusReceived PurchaseStatus = "received"
	PurchaseStatusPartial  PurchaseStatus = "partial"
	PurchaseStatusPaid     PurchaseStatus = "paid"
)

// StockStatus reports how much of a bill made it into stock
type StockStatus string

const (
	StockStatusApplied StockStatus = "applied"
	StockStatusPartial StockStatus = "partial"
	StockStatusFailed  StockStatus = "failed"
)

// Vendor supplies stock. Balance is what the business owes the vendor.
type Vendor struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"not null;size:255" json:"name"`
	ContactPerson string          `gorm:"size:255" json:"contact_person"`
	Phone         string          `gorm:"size:20" json:"phone"`
	Email         string          `gorm:"size:255" json:"email"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
	Balance       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"balance"`
	Version       int             `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Purchase is a vendor bill
type Purchase struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	SupplyNumber     string          `gorm:"uniqueIndex;not null;size:30" json:"supply_number"`
	VendorID         uint            `gorm:"not null;index" json:"vendor_id"`
	Status           PurchaseStatus  `gorm:"not null;size:20;default:'received'" json:"status"`
	StockStatus      StockStatus     `gorm:"not null;size:20;default:'applied'" json:"stock_status"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"paid_amount"`
	InvoiceReference string          `gorm:"size:100" json:"invoice_reference"`
	Notes            string          `gorm:"type:text" json:"notes"`
	Version          int             `gorm:"not null;default:0" json:"-"`
	CreatedBy        uint            `gorm:"not null;index" json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Relationships
	Vendor   *Vendor         `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	Items    []PurchaseItem  `gorm:"foreignKey:PurchaseID" json:"items,omitempty"`
	Payments []VendorPayment `gorm:"foreignKey:PurchaseID" json:"payments,omitempty"`
}

// PurchaseItem is one line of a vendor bill
type PurchaseItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	PurchaseID   uint            `gorm:"not null;index" json:"purchase_id"`
	VariantID    uint            `gorm:"not null;index" json:"variant_id"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"unit_cost"`
	TotalCost    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_cost"`
	StockApplied bool            `gorm:"not null" json:"stock_applied"`
	StockError   string          `gorm:"type:text" json:"stock_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// VendorPayment records money paid against a bill
type VendorPayment struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	PurchaseID uint            `gorm:"not null;index" json:"purchase_id"`
	VendorID   uint            `gorm:"not null;index" json:"vendor_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Method     string          `gorm:"size:30" json:"method"`
	Reference  string          `gorm:"size:100" json:"reference"`
	Notes      string          `gorm:"type:text" json:"notes"`
	CreatedBy  uint            `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName overrides
func (Vendor) TableName() string        { return "vendors" }
func (Purchase) TableName() string      { return "purchases" }
func (PurchaseItem) TableName() string  { return "purchase_items" }
func (VendorPayment) TableName() string { return "vendor_payments" }

// Outstanding returns what is still owed on the bill
func (p *Purchase) Outstanding() decimal.Decimal {
	return p.TotalAmount.Sub(p.PaidAmount)
}

// IsPaid checks if the bill is fully paid
func (p *Purchase) IsPaid() bool {
	return p.Status == PurchaseStatusPaid
}
