// internal/domain/dispatch/entity.go
package dispatch

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/ops-ledger/internal/domain/order"
)

// ManifestStatus represents the state of a rider run
type ManifestStatus string

const (
	ManifestStatusOpen             ManifestStatus = "open"
	ManifestStatusDispatched       ManifestStatus = "dispatched"
	ManifestStatusPartiallySettled ManifestStatus = "partially_settled"
	ManifestStatusSettled          ManifestStatus = "settled"
	ManifestStatusCancelled        ManifestStatus = "cancelled"
)

// Outcome is what happened to one order on a run
type Outcome string

const (
	OutcomePending             Outcome = "pending"
	OutcomeDelivered           Outcome = "delivered"
	OutcomeCustomerRefused     Outcome = "customer_refused"
	OutcomeCustomerUnavailable Outcome = "customer_unavailable"
	OutcomeWrongAddress        Outcome = "wrong_address"
	OutcomeRescheduled         Outcome = "rescheduled"
	OutcomeReturned            Outcome = "returned"
	OutcomeDamaged             Outcome = "damaged"
	OutcomeLost                Outcome = "lost"
)

// Manifest groups packed orders assigned to one rider for one run
type Manifest struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	ManifestNumber     string          `gorm:"uniqueIndex;not null;size:40" json:"manifest_number"`
	RiderID            uint            `gorm:"not null;index" json:"rider_id"`
	ZoneName           string          `gorm:"size:100" json:"zone_name"`
	Status             ManifestStatus  `gorm:"not null;size:20;default:'open';index" json:"status"`
	TotalOrders        int             `gorm:"not null;default:0" json:"total_orders"`
	DeliveredCount     int             `gorm:"not null;default:0" json:"delivered_count"`
	ReturnedCount      int             `gorm:"not null;default:0" json:"returned_count"`
	RescheduledCount   int             `gorm:"not null;default:0" json:"rescheduled_count"`
	TotalCODExpected   decimal.Decimal `gorm:"column:total_cod_expected;type:decimal(14,2);not null;default:0" json:"total_cod_expected"`
	TotalCODCollected  decimal.Decimal `gorm:"column:total_cod_collected;type:decimal(14,2);not null;default:0" json:"total_cod_collected"`
	CashReceived       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"cash_received"`
	SettlementVariance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"settlement_variance"`
	Notes              string          `gorm:"type:text" json:"notes"`
	DispatchedAt       *time.Time      `json:"dispatched_at"`
	SettledAt          *time.Time      `json:"settled_at"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	CreatedBy          uint            `gorm:"not null;index" json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	// Relationships
	Items []ManifestItem `gorm:"foreignKey:ManifestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
}

// ManifestItem pairs one order with its place and outcome on a run
type ManifestItem struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ManifestID        uint            `gorm:"not null;uniqueIndex:idx_manifest_items_manifest_order" json:"manifest_id"`
	OrderID           uint            `gorm:"not null;uniqueIndex:idx_manifest_items_manifest_order;index" json:"order_id"`
	SequenceNumber    int             `gorm:"not null" json:"sequence_number"`
	Outcome           Outcome         `gorm:"not null;size:30;default:'pending'" json:"outcome"`
	CODAmount         decimal.Decimal `gorm:"column:cod_amount;type:decimal(14,2);not null;default:0" json:"cod_amount"`
	CODCollected      decimal.Decimal `gorm:"column:cod_collected;type:decimal(14,2);not null;default:0" json:"cod_collected"`
	Removed           bool            `gorm:"not null" json:"removed"`
	Notes             string          `gorm:"type:text" json:"notes"`
	OutcomeRecordedBy *uint           `json:"outcome_recorded_by"`
	OutcomeRecordedAt *time.Time      `json:"outcome_recorded_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Order *order.Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName overrides
func (Manifest) TableName() string     { return "manifests" }
func (ManifestItem) TableName() string { return "manifest_items" }

var validTransitions = map[ManifestStatus][]ManifestStatus{
	ManifestStatusOpen:             {ManifestStatusDispatched, ManifestStatusCancelled},
	ManifestStatusDispatched:       {ManifestStatusPartiallySettled, ManifestStatusSettled},
	ManifestStatusPartiallySettled: {ManifestStatusPartiallySettled, ManifestStatusSettled},
}

// CanTransition reports whether a manifest may move between statuses
func CanTransition(from, to ManifestStatus) bool {
	for _, status := range validTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// IsValidOutcome checks that o is a recordable outcome
func IsValidOutcome(o Outcome) bool {
	switch o {
	case OutcomeDelivered, OutcomeCustomerRefused, OutcomeCustomerUnavailable, OutcomeWrongAddress,
		OutcomeRescheduled, OutcomeReturned, OutcomeDamaged, OutcomeLost:
		return true
	}
	return false
}

// orderStatusFor maps an outcome to the status its order moves to
func orderStatusFor(o Outcome) order.OrderStatus {
	switch o {
	case OutcomeDelivered:
		return order.OrderStatusDelivered
	case OutcomeCustomerRefused, OutcomeCustomerUnavailable, OutcomeWrongAddress:
		return order.OrderStatusRejected
	case OutcomeReturned, OutcomeDamaged:
		return order.OrderStatusReturned
	case OutcomeLost:
		return order.OrderStatusLost
	default:
		return order.OrderStatusPacked
	}
}

// ActiveItems returns the items still on the run
func (m *Manifest) ActiveItems() []ManifestItem {
	active := make([]ManifestItem, 0, len(m.Items))
	for _, item := range m.Items {
		if !item.Removed {
			active = append(active, item)
		}
	}
	return active
}

// TakesOutcomes reports whether items on the run can still be closed. A run
// that took a deposit mid-route keeps accepting outcomes until it settles.
func (m *Manifest) TakesOutcomes() bool {
	return m.Status == ManifestStatusDispatched || m.Status == ManifestStatusPartiallySettled
}

// PendingCount returns how many active items still await an outcome
func (m *Manifest) PendingCount() int {
	n := 0
	for _, item := range m.ActiveItems() {
		if item.Outcome == OutcomePending {
			n++
		}
	}
	return n
}
