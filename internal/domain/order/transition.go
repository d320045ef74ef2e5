package order

import (
	"errors"
	"time"

	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusConfirmed,
		OrderStatusCancelled,
	},
	OrderStatusConfirmed: {
		OrderStatusReady,
		OrderStatusPacked,
		OrderStatusCancelled,
	},
	OrderStatusReady: {
		OrderStatusPacked,
		OrderStatusCancelled,
	},
	OrderStatusPacked: {
		OrderStatusOutForDelivery,
		OrderStatusHandedToCourier,
		OrderStatusReady,
	},
	OrderStatusOutForDelivery: {
		OrderStatusDelivered,
		OrderStatusRejected,
		OrderStatusReturned,
		OrderStatusLost,
		OrderStatusPacked,
		OrderStatusReady,
	},
	OrderStatusHandedToCourier: {
		OrderStatusDelivered,
		OrderStatusRejected,
		OrderStatusReturned,
		OrderStatusLost,
	},
	OrderStatusDelivered: {
		OrderStatusPartiallyReturned,
		OrderStatusReturnProcessed,
	},
	OrderStatusRejected: {
		OrderStatusPartiallyReturned,
		OrderStatusReturnProcessed,
	},
	OrderStatusReturned: {
		OrderStatusPartiallyReturned,
		OrderStatusReturnProcessed,
	},
	OrderStatusPartiallyReturned: {
		OrderStatusPartiallyReturned,
		OrderStatusReturnProcessed,
	},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to OrderStatus) bool {
	for _, status := range validTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// Lock loads an order and its items under a row lock
func Lock(tx *gorm.DB, orderID uint) (*Order, error) {
	var o Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Items").First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("order", orderID)
	}
	if err != nil {
		return nil, apperror.Database("load order", err)
	}
	return &o, nil
}

// Transition moves o to a new status. The write only lands if the row still
// has the status o was read with; extra columns are updated in the same
// statement. A history row is appended on success.
func Transition(tx *gorm.DB, o *Order, to OrderStatus, extra map[string]any, comment string, actorID uint) error {
	from := o.Status
	if !CanTransition(from, to) {
		return apperror.InvalidTransition("order", from, to)
	}

	now := time.Now().UTC()
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	switch to {
	case OrderStatusPacked:
		updates["packed_at"] = now
	case OrderStatusDelivered:
		updates["delivered_at"] = now
	}

	res := tx.Model(&Order{}).Where("id = ? AND status = ?", o.ID, from).Updates(updates)
	if res.Error != nil {
		return apperror.Database("update order status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("ORDER_STATUS_CHANGED", "order "+o.OrderNumber+" changed status concurrently")
	}

	history := OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: from,
		Status:     to,
		Comment:    comment,
		CreatedBy:  actorID,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return apperror.Database("create status history", err)
	}

	o.Status = to
	return nil
}
