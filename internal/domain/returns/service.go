// internal/domain/returns/service.go
package returns

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/validation"
	"gorm.io/gorm"
)

// Service receives returned goods back into the ledger
type Service struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	locker lock.Locker
	logger *logrus.Logger
}

// NewService creates a new returns service
func NewService(db *gorm.DB, ledger *inventory.Ledger, locker lock.Locker, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		ledger: ledger,
		locker: locker,
		logger: logger,
	}
}

// ProcessReturnRequest represents goods received back against an order
type ProcessReturnRequest struct {
	Items []ReturnItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes string              `json:"notes"`
}

// ReturnItemRequest represents one returned line
type ReturnItemRequest struct {
	VariantID uint      `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
	Condition Condition `json:"condition" validate:"required,oneof=good damaged"`
}

// ProcessReturn books returned units: good units go back into stock, damaged
// units are logged as damage without restoring stock.
func (s *Service) ProcessReturn(ctx context.Context, orderID uint, req *ProcessReturnRequest, actorID uint) (*ReturnRecord, error) {
	if err := validation.Struct(req, "return is invalid"); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.Key("order", orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	var recordID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := order.Lock(tx, orderID)
		if err != nil {
			return err
		}
		if !o.IsReturnable() {
			return apperror.InvalidTransition("order", o.Status, order.OrderStatusReturnProcessed)
		}

		if err := checkQuantities(o, req.Items); err != nil {
			return err
		}

		record := &ReturnRecord{
			OrderID:     o.ID,
			ManifestID:  o.CurrentManifestID,
			RiderID:     o.RiderID,
			Notes:       req.Notes,
			ProcessedBy: actorID,
		}
		if err := tx.Create(record).Error; err != nil {
			return apperror.Database("create return record", err)
		}

		for _, line := range req.Items {
			movement := inventory.Movement{
				VariantID:     line.VariantID,
				Quantity:      line.Quantity,
				ReferenceType: inventory.ReferenceReturn,
				ReferenceID:   record.ID,
				Notes:         fmt.Sprintf("%s returned %s", o.OrderNumber, line.Condition),
				CreatedBy:     actorID,
			}
			if line.Condition == ConditionGood {
				movement.Type = inventory.MovementTypeInward
				movement.Delta = line.Quantity
				record.GoodUnits += line.Quantity
			} else {
				movement.Type = inventory.MovementTypeDamage
				movement.Delta = 0
				record.DamagedUnits += line.Quantity
			}

			applied, err := s.ledger.Apply(ctx, tx, movement)
			if err != nil {
				return err
			}

			item := ReturnItem{
				ReturnRecordID: record.ID,
				VariantID:      line.VariantID,
				Quantity:       line.Quantity,
				Condition:      line.Condition,
				MovementID:     applied.Movement.ID,
			}
			if err := tx.Create(&item).Error; err != nil {
				return apperror.Database("create return item", err)
			}

			if err := allocate(tx, o, line.VariantID, line.Quantity); err != nil {
				return err
			}
		}

		record.TotalUnits = record.GoodUnits + record.DamagedUnits
		if err := tx.Model(record).Updates(map[string]any{
			"total_units":   record.TotalUnits,
			"good_units":    record.GoodUnits,
			"damaged_units": record.DamagedUnits,
		}).Error; err != nil {
			return apperror.Database("update return record", err)
		}

		next := order.OrderStatusReturnProcessed
		for _, item := range o.Items {
			if item.OutstandingUnits() > 0 {
				next = order.OrderStatusPartiallyReturned
				break
			}
		}
		comment := fmt.Sprintf("Return received: %d good, %d damaged", record.GoodUnits, record.DamagedUnits)
		if err := order.Transition(tx, o, next, nil, comment, actorID); err != nil {
			return err
		}

		recordID = record.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	restocked := make([]uint, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Condition == ConditionGood {
			restocked = append(restocked, line.VariantID)
		}
	}
	s.ledger.CheckAlerts(ctx, restocked...)

	return s.GetReturn(ctx, recordID)
}

// checkQuantities reports every line that names a foreign variant or returns
// more than is still outstanding on the order
func checkQuantities(o *order.Order, lines []ReturnItemRequest) error {
	outstanding := make(map[uint]int)
	for _, item := range o.Items {
		outstanding[item.VariantID] += item.OutstandingUnits()
	}

	var fields apperror.Fields
	for i, line := range lines {
		left, ok := outstanding[line.VariantID]
		if !ok {
			fields.Add(fmt.Sprintf("items[%d].variant_id", i), "variant %d is not part of order %s", line.VariantID, o.OrderNumber)
			continue
		}
		if line.Quantity > left {
			fields.Add(fmt.Sprintf("items[%d].quantity", i), "exceeds the %d unit(s) still outstanding", left)
			continue
		}
		outstanding[line.VariantID] = left - line.Quantity
	}

	return fields.Err("return is invalid")
}

// allocate spreads returned units over the order lines carrying the variant
func allocate(tx *gorm.DB, o *order.Order, variantID uint, quantity int) error {
	for i := range o.Items {
		item := &o.Items[i]
		if quantity == 0 {
			break
		}
		if item.VariantID != variantID || item.OutstandingUnits() == 0 {
			continue
		}

		take := min(quantity, item.OutstandingUnits())
		item.ReturnedQuantity += take
		quantity -= take

		if err := tx.Model(&order.OrderItem{}).Where("id = ?", item.ID).
			Update("returned_quantity", item.ReturnedQuantity).Error; err != nil {
			return apperror.Database("update order item", err)
		}
	}
	return nil
}

// GetReturn retrieves a return record with its lines
func (s *Service) GetReturn(ctx context.Context, recordID uint) (*ReturnRecord, error) {
	var record ReturnRecord
	err := s.db.WithContext(ctx).Preload("Items").First(&record, recordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("return", recordID)
	}
	if err != nil {
		return nil, apperror.Database("load return", err)
	}
	return &record, nil
}

// ListReturns retrieves every return booked against an order
func (s *Service) ListReturns(ctx context.Context, orderID uint) ([]ReturnRecord, error) {
	var records []ReturnRecord
	if err := s.db.WithContext(ctx).Preload("Items").Where("order_id = ?", orderID).Order("id").Find(&records).Error; err != nil {
		return nil, apperror.Database("list returns", err)
	}
	return records, nil
}
