// internal/domain/order/service.go
package order

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/batch"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"gorm.io/gorm"
)

// PackingService commits an order's stock deduction and marks it packed
type PackingService struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	locker lock.Locker
	logger *logrus.Logger
}

// NewPackingService creates a new packing service
func NewPackingService(db *gorm.DB, ledger *inventory.Ledger, locker lock.Locker, logger *logrus.Logger) *PackingService {
	return &PackingService{
		db:     db,
		ledger: ledger,
		locker: locker,
		logger: logger,
	}
}

// PackOrdersRequest represents a bulk pack scan
type PackOrdersRequest struct {
	OrderIDs []uint `json:"order_ids" validate:"required,min=1,unique"`
}

// PackOrder deducts every line of the order from stock and marks it packed.
// A shortage on any line rolls the whole order back.
func (s *PackingService) PackOrder(ctx context.Context, orderID uint, actorID uint) (*Order, error) {
	release, err := s.locker.Acquire(ctx, lock.Key("order", orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	var variantIDs []uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := Lock(tx, orderID)
		if err != nil {
			return err
		}

		if !o.IsPackEligible() {
			return apperror.InvalidTransition("order", o.Status, OrderStatusPacked)
		}
		if len(o.Items) == 0 {
			return apperror.BadRequest("ORDER_HAS_NO_ITEMS", "order "+o.OrderNumber+" has no items to pack")
		}

		for _, item := range o.Items {
			_, err := s.ledger.Apply(ctx, tx, inventory.Movement{
				VariantID:     item.VariantID,
				Type:          inventory.MovementTypeOutward,
				Delta:         -item.Quantity,
				ReferenceType: inventory.ReferenceOrder,
				ReferenceID:   o.ID,
				Notes:         o.OrderNumber,
				CreatedBy:     actorID,
			})
			if err != nil {
				return err
			}
			variantIDs = append(variantIDs, item.VariantID)
		}

		return Transition(tx, o, OrderStatusPacked, nil, "Order packed", actorID)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.CheckAlerts(ctx, variantIDs...)

	return s.GetOrder(ctx, orderID)
}

// PackOrders packs each order on its own so one bad order never blocks the rest
func (s *PackingService) PackOrders(ctx context.Context, orderIDs []uint, actorID uint) *batch.Result[Order] {
	result := &batch.Result[Order]{}

	for _, id := range orderIDs {
		packed, err := s.PackOrder(ctx, id, actorID)
		result.Record(id, packed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(orderIDs),
		"packed":    result.Succeeded,
		"failed":    result.Failed,
	}).Info("Bulk pack finished")

	return result
}

// GetOrder retrieves a single order by ID
func (s *PackingService) GetOrder(ctx context.Context, orderID uint) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("id DESC")
		}).
		First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("order", orderID)
	}
	if err != nil {
		return nil, apperror.Database("load order", err)
	}
	return &o, nil
}
