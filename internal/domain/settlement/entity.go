// internal/domain/settlement/entity.go
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus represents the verification state of a deposit
type SettlementStatus string

const (
	SettlementStatusPending  SettlementStatus = "pending"
	SettlementStatusSettled  SettlementStatus = "settled"
	SettlementStatusVerified SettlementStatus = "verified"
)

// Settlement is a rider handing collected cash back to the business
type Settlement struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	RiderID           uint             `gorm:"not null;index" json:"rider_id"`
	ManifestID        *uint            `gorm:"index" json:"manifest_id"`
	TotalCODCollected decimal.Decimal  `gorm:"column:total_cod_collected;type:decimal(14,2);not null;default:0" json:"total_cod_collected"`
	AmountDeposited   decimal.Decimal  `gorm:"type:decimal(14,2);not null" json:"amount_deposited"`
	BalanceBefore     decimal.Decimal  `gorm:"type:decimal(14,2);not null" json:"balance_before"`
	BalanceAfter      decimal.Decimal  `gorm:"type:decimal(14,2);not null" json:"balance_after"`
	Variance          decimal.Decimal  `gorm:"type:decimal(14,2);not null;default:0" json:"variance"`
	Status            SettlementStatus `gorm:"not null;size:20;default:'pending';index" json:"status"`
	DepositReference  string           `gorm:"uniqueIndex;not null;size:64" json:"deposit_reference"`
	Notes             string           `gorm:"type:text" json:"notes"`
	CreatedBy         uint             `gorm:"not null;index" json:"created_by"`
	VerifiedBy        *uint            `json:"verified_by"`
	VerifiedAt        *time.Time       `json:"verified_at"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName overrides
func (Settlement) TableName() string { return "settlements" }

// IsVerified checks if the deposit has been confirmed
func (s *Settlement) IsVerified() bool {
	return s.Status == SettlementStatusVerified
}
