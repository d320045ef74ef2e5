// internal/domain/returns/entity.go
package returns

import "time"

// Condition is the state a returned unit comes back in
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
)

// ReturnRecord is one receipt of goods coming back against an order.
// Manifest and rider are copied from the order at the time of receipt.
type ReturnRecord struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	OrderID      uint         `gorm:"not null;index" json:"order_id"`
	ManifestID   *uint        `gorm:"index" json:"manifest_id"`
	RiderID      *uint        `gorm:"index" json:"rider_id"`
	TotalUnits   int          `gorm:"not null;default:0" json:"total_units"`
	GoodUnits    int          `gorm:"not null;default:0" json:"good_units"`
	DamagedUnits int          `gorm:"not null;default:0" json:"damaged_units"`
	Notes        string       `gorm:"type:text" json:"notes"`
	ProcessedBy  uint         `gorm:"not null;index" json:"processed_by"`
	CreatedAt    time.Time    `json:"created_at"`
	Items        []ReturnItem `gorm:"foreignKey:ReturnRecordID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
}

// ReturnItem is one returned line and the ledger movement it produced
type ReturnItem struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ReturnRecordID uint      `gorm:"not null;index" json:"return_record_id"`
	VariantID      uint      `gorm:"not null;index" json:"variant_id"`
	Quantity       int       `gorm:"not null" json:"quantity"`
	Condition      Condition `gorm:"not null;size:20" json:"condition"`
	MovementID     uint      `gorm:"not null" json:"movement_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName overrides
func (ReturnRecord) TableName() string { return "return_records" }
func (ReturnItem) TableName() string   { return "return_items" }
