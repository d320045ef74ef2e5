// internal/domain/rider/entity.go
package rider

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiderStatus represents duty/availability
type RiderStatus string

const (
	RiderStatusAvailable RiderStatus = "available"
	RiderStatusOnDuty    RiderStatus = "on_duty"
	RiderStatusOffDuty   RiderStatus = "off_duty"
	RiderStatusInactive  RiderStatus = "inactive"
)

// Balance log reasons
const (
	ReasonCODCollected = "cod_collected"
	ReasonSettlement   = "settlement"
)

// Rider delivers manifests. CurrentCashBalance is the cash held on behalf of
// the business; it grows with COD collections and shrinks only by settlement.
type Rider struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Name               string          `gorm:"not null;size:255" json:"name"`
	Phone              string          `gorm:"size:20;index" json:"phone"`
	Status             RiderStatus     `gorm:"not null;size:20;default:'available'" json:"status"`
	CurrentCashBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"current_cash_balance"`
	TotalDeliveries    int             `gorm:"not null;default:0" json:"total_deliveries"`
	TotalReturns       int             `gorm:"not null;default:0" json:"total_returns"`
	Version            int             `gorm:"not null;default:0" json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RiderBalanceLog is the audit trail of balance changes
type RiderBalanceLog struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RiderID       uint            `gorm:"not null;index" json:"rider_id"`
	Delta         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"delta"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"balance_after"`
	Reason        string          `gorm:"not null;size:50" json:"reason"`
	ReferenceType string          `gorm:"size:50" json:"reference_type"`
	ReferenceID   uint            `json:"reference_id"`
	CreatedBy     uint            `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}

// TableName overrides
func (Rider) TableName() string           { return "riders" }
func (RiderBalanceLog) TableName() string { return "rider_balance_logs" }

// CanTakeManifest checks if the rider may be assigned a run
func (r *Rider) CanTakeManifest() bool {
	return r.Status != RiderStatusInactive
}
