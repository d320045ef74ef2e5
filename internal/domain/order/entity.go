// internal/domain/order/entity.go
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusConfirmed         OrderStatus = "confirmed"
	OrderStatusReady             OrderStatus = "ready"
	OrderStatusPacked            OrderStatus = "packed"
	OrderStatusOutForDelivery    OrderStatus = "out_for_delivery"
	OrderStatusHandedToCourier   OrderStatus = "handed_to_courier"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusRejected          OrderStatus = "rejected"
	OrderStatusReturned          OrderStatus = "returned"
	OrderStatusLost              OrderStatus = "lost"
	OrderStatusPartiallyReturned OrderStatus = "partially_returned"
	OrderStatusReturnProcessed   OrderStatus = "return_processed"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod represents how the customer pays
type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodPrepaid PaymentMethod = "prepaid"
)

// Order is created elsewhere; this core only moves its status, rider and manifest
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderNumber   string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	CustomerName  string        `gorm:"size:255" json:"customer_name"`
	CustomerPhone string        `gorm:"size:20" json:"customer_phone"`
	Status        OrderStatus   `gorm:"not null;size:30;default:'pending';index" json:"status"`
	PaymentMethod PaymentMethod `gorm:"not null;size:20;default:'cod'" json:"payment_method"`
	PaymentStatus PaymentStatus `gorm:"not null;size:20;default:'pending'" json:"payment_status"`

	// Financial Information
	TotalAmount decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`

	// Dispatch
	RiderID           *uint `gorm:"index" json:"rider_id"`
	CurrentManifestID *uint `gorm:"index" json:"current_manifest_id"`

	Notes string `gorm:"type:text" json:"notes"`

	// Timestamps
	PackedAt    *time.Time `json:"packed_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	VariantID        uint            `gorm:"not null;index" json:"variant_id"`
	SKU              string          `gorm:"size:100" json:"sku"`
	Name             string          `gorm:"size:255" json:"name"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	ReturnedQuantity int             `gorm:"not null;default:0" json:"returned_quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"unit_price"`
	TotalPrice       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_price"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"size:30" json:"from_status"`
	Status     OrderStatus `gorm:"not null;size:30" json:"status"`
	Comment    string      `gorm:"type:text" json:"comment"`
	CreatedBy  uint        `gorm:"index" json:"created_by"` // User ID who made the change
	CreatedAt  time.Time   `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Business methods for Order

// IsPackEligible checks if the order may be packed
func (o *Order) IsPackEligible() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusReady
}

// IsReturnable checks if returned goods can be received against the order
func (o *Order) IsReturnable() bool {
	switch o.Status {
	case OrderStatusRejected, OrderStatusReturned, OrderStatusDelivered, OrderStatusPartiallyReturned:
		return true
	}
	return false
}

// CollectsCash reports whether the rider is expected to collect the total at the door
func (o *Order) CollectsCash() bool {
	return o.PaymentMethod == PaymentMethodCOD && o.PaymentStatus != PaymentStatusPaid
}

// OutstandingUnits returns the units not yet received back
func (i *OrderItem) OutstandingUnits() int {
	return i.Quantity - i.ReturnedQuantity
}
