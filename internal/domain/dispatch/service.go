// internal/domain/dispatch/service.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service runs manifests from creation through delivery outcomes
type Service struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	riders *rider.Service
	locker lock.Locker
	logger *logrus.Logger
}

// NewService creates a new dispatch service
func NewService(db *gorm.DB, ledger *inventory.Ledger, riders *rider.Service, locker lock.Locker, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		ledger: ledger,
		riders: riders,
		locker: locker,
		logger: logger,
	}
}

// CreateManifestRequest represents manifest creation data
type CreateManifestRequest struct {
	RiderID  uint   `json:"rider_id" validate:"required"`
	OrderIDs []uint `json:"order_ids" validate:"required,min=1,unique,dive,gt=0"`
	ZoneName string `json:"zone_name" validate:"max=100"`
	Notes    string `json:"notes"`
}

// RecordOutcomeRequest represents a delivery outcome for one order
type RecordOutcomeRequest struct {
	Outcome      Outcome          `json:"outcome" validate:"required"`
	CODCollected *decimal.Decimal `json:"cod_collected"`
	Notes        string           `json:"notes"`
}

// ListManifestsRequest filters the manifest listing
type ListManifestsRequest struct {
	RiderID uint   `form:"rider_id"`
	Status  string `form:"status"`
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
}

func generateManifestNumber(now time.Time) string {
	// Format: MAN-YYYYMMDD-XXXXXXXX
	return fmt.Sprintf("MAN-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// lockManifest loads a manifest and its items under a row lock
func lockManifest(tx *gorm.DB, manifestID uint) (*Manifest, error) {
	var m Manifest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_number")
		}).
		First(&m, manifestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("manifest", manifestID)
	}
	if err != nil {
		return nil, apperror.Database("load manifest", err)
	}
	return &m, nil
}

// updateManifest writes columns only if the manifest still has the status it was read with
func updateManifest(tx *gorm.DB, m *Manifest, to ManifestStatus, updates map[string]any) error {
	if to != m.Status && !CanTransition(m.Status, to) {
		return apperror.InvalidTransition("manifest", m.Status, to)
	}

	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := tx.Model(&Manifest{}).Where("id = ? AND status = ?", m.ID, m.Status).Updates(updates)
	if res.Error != nil {
		return apperror.Database("update manifest", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("MANIFEST_CHANGED", fmt.Sprintf("manifest %s changed concurrently", m.ManifestNumber))
	}

	m.Status = to
	return nil
}

// findItem returns the active item for an order on the manifest
func findItem(m *Manifest, orderID uint) (*ManifestItem, error) {
	for i := range m.Items {
		if m.Items[i].OrderID == orderID && !m.Items[i].Removed {
			return &m.Items[i], nil
		}
	}
	return nil, apperror.NotFound("manifest_item", fmt.Sprintf("for order %d on manifest %s", orderID, m.ManifestNumber))
}

// MANIFESTS

// CreateManifest assigns packed orders to a rider. Either every order is
// claimed or none is.
func (s *Service) CreateManifest(ctx context.Context, req *CreateManifestRequest, actorID uint) (*Manifest, error) {
	if err := validation.Struct(req, "manifest is invalid"); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.Key("rider", req.RiderID))
	if err != nil {
		return nil, err
	}
	defer release()

	var manifestID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := rider.Lock(tx, req.RiderID)
		if err != nil {
			return err
		}
		if !r.CanTakeManifest() {
			return apperror.BadRequest("RIDER_INACTIVE", fmt.Sprintf("rider %s is inactive", r.Name))
		}

		var orders []order.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id IN ?", req.OrderIDs).Find(&orders).Error; err != nil {
			return apperror.Database("load orders", err)
		}
		byID := make(map[uint]*order.Order, len(orders))
		for i := range orders {
			byID[orders[i].ID] = &orders[i]
		}

		var fields apperror.Fields
		for i, id := range req.OrderIDs {
			o, ok := byID[id]
			if !ok {
				return apperror.NotFound("order", id)
			}
			if o.CurrentManifestID != nil {
				return apperror.Conflict("ORDER_ALREADY_CLAIMED",
					fmt.Sprintf("order %s is already on manifest %d", o.OrderNumber, *o.CurrentManifestID))
			}
			if o.Status != order.OrderStatusPacked {
				fields.Add(fmt.Sprintf("order_ids[%d]", i), "order %s is %s, not packed", o.OrderNumber, o.Status)
			}
		}
		if err := fields.Err("manifest is invalid"); err != nil {
			return err
		}

		m := &Manifest{
			ManifestNumber: generateManifestNumber(time.Now().UTC()),
			RiderID:        r.ID,
			ZoneName:       req.ZoneName,
			Status:         ManifestStatusOpen,
			TotalOrders:    len(req.OrderIDs),
			Notes:          req.Notes,
			CreatedBy:      actorID,
		}

		expected := decimal.Zero
		for i, id := range req.OrderIDs {
			o := byID[id]
			cod := decimal.Zero
			if o.CollectsCash() {
				cod = o.TotalAmount
			}
			expected = expected.Add(cod)
			m.Items = append(m.Items, ManifestItem{
				OrderID:        id,
				SequenceNumber: i + 1,
				Outcome:        OutcomePending,
				CODAmount:      cod,
			})
		}
		m.TotalCODExpected = expected

		if err := tx.Create(m).Error; err != nil {
			return apperror.Database("create manifest", err)
		}

		for _, id := range req.OrderIDs {
			res := tx.Model(&order.Order{}).
				Where("id = ? AND current_manifest_id IS NULL", id).
				Updates(map[string]any{
					"current_manifest_id": m.ID,
					"rider_id":            r.ID,
				})
			if res.Error != nil {
				return apperror.Database("claim order", res.Error)
			}
			if res.RowsAffected == 0 {
				return apperror.Conflict("ORDER_ALREADY_CLAIMED",
					fmt.Sprintf("order %s was claimed by another manifest", byID[id].OrderNumber))
			}
		}

		manifestID = m.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetManifest(ctx, manifestID)
}

// DispatchManifest sends the run out: open to dispatched, every order out for delivery
func (s *Service) DispatchManifest(ctx context.Context, manifestID uint, actorID uint) (*Manifest, error) {
	release, err := s.locker.Acquire(ctx, lock.Key("manifest", manifestID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockManifest(tx, manifestID)
		if err != nil {
			return err
		}
		if m.Status != ManifestStatusOpen {
			return apperror.InvalidTransition("manifest", m.Status, ManifestStatusDispatched)
		}

		active := m.ActiveItems()
		if len(active) == 0 {
			return apperror.BadRequest("MANIFEST_EMPTY", fmt.Sprintf("manifest %s has no orders", m.ManifestNumber))
		}

		if err := updateManifest(tx, m, ManifestStatusDispatched, map[string]any{"dispatched_at": time.Now().UTC()}); err != nil {
			return err
		}

		for _, item := range active {
			o, err := order.Lock(tx, item.OrderID)
			if err != nil {
				return err
			}
			if err := order.Transition(tx, o, order.OrderStatusOutForDelivery, nil, "Dispatched on "+m.ManifestNumber, actorID); err != nil {
				return err
			}
		}

		if err := tx.Model(&rider.Rider{}).Where("id = ?", m.RiderID).Update("status", rider.RiderStatusOnDuty).Error; err != nil {
			return apperror.Database("update rider status", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetManifest(ctx, manifestID)
}

// CancelManifest abandons an open run; its orders are released and stay packed
func (s *Service) CancelManifest(ctx context.Context, manifestID uint, actorID uint) (*Manifest, error) {
	release, err := s.locker.Acquire(ctx, lock.Key("manifest", manifestID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockManifest(tx, manifestID)
		if err != nil {
			return err
		}
		if m.Status != ManifestStatusOpen {
			return apperror.InvalidTransition("manifest", m.Status, ManifestStatusCancelled)
		}

		if err := tx.Model(&order.Order{}).
			Where("current_manifest_id = ?", m.ID).
			Updates(map[string]any{"current_manifest_id": nil, "rider_id": nil}).Error; err != nil {
			return apperror.Database("release orders", err)
		}

		return updateManifest(tx, m, ManifestStatusCancelled, map[string]any{"cancelled_at": time.Now().UTC()})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"manifest_id": manifestID, "cancelled_by": actorID}).Info("Manifest cancelled")

	return s.GetManifest(ctx, manifestID)
}

// DELIVERY OUTCOMES

// RecordDeliveryOutcome records what happened to one order on a dispatched run.
// An outcome is written once; a second attempt is a conflict.
func (s *Service) RecordDeliveryOutcome(ctx context.Context, manifestID, orderID uint, req *RecordOutcomeRequest, actorID uint) (*Manifest, error) {
	var fields apperror.Fields
	validation.Collect(req, &fields)
	if req.Outcome != "" && !IsValidOutcome(req.Outcome) {
		fields.Add("outcome", "%q is not a recordable outcome", req.Outcome)
	}
	if req.CODCollected != nil && req.CODCollected.IsNegative() {
		fields.Add("cod_collected", "must be at least 0")
	}
	if err := fields.Err("delivery outcome is invalid"); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.Key("manifest", manifestID))
	if err != nil {
		return nil, err
	}
	defer release()

	var change *rider.BalanceChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockManifest(tx, manifestID)
		if err != nil {
			return err
		}
		if !m.TakesOutcomes() {
			return apperror.InvalidState("MANIFEST_NOT_DISPATCHED",
				fmt.Sprintf("outcomes can only be recorded on a dispatched manifest, %s is %s", m.ManifestNumber, m.Status))
		}

		item, err := findItem(m, orderID)
		if err != nil {
			return err
		}
		if item.Outcome != OutcomePending {
			return apperror.Conflict("OUTCOME_ALREADY_RECORDED",
				fmt.Sprintf("order %d already has outcome %s on manifest %s", orderID, item.Outcome, m.ManifestNumber))
		}

		o, err := order.Lock(tx, orderID)
		if err != nil {
			return err
		}

		cod := decimal.Zero
		if req.Outcome == OutcomeDelivered {
			cod = item.CODAmount
			if req.CODCollected != nil {
				cod = *req.CODCollected
			}
		}

		now := time.Now().UTC()
		res := tx.Model(&ManifestItem{}).
			Where("id = ? AND outcome = ?", item.ID, OutcomePending).
			Updates(map[string]any{
				"outcome":             req.Outcome,
				"cod_collected":       cod,
				"notes":               req.Notes,
				"outcome_recorded_by": actorID,
				"outcome_recorded_at": now,
			})
		if res.Error != nil {
			return apperror.Database("record outcome", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("OUTCOME_ALREADY_RECORDED", fmt.Sprintf("order %d already has an outcome", orderID))
		}

		counters := map[string]any{}
		collected := m.TotalCODCollected
		comment := fmt.Sprintf("Outcome %s on %s", req.Outcome, m.ManifestNumber)
		var orderExtra map[string]any

		switch req.Outcome {
		case OutcomeDelivered:
			r, err := rider.Lock(tx, m.RiderID)
			if err != nil {
				return err
			}
			change, err = rider.Adjust(tx, r, cod, map[string]any{"total_deliveries": r.TotalDeliveries + 1})
			if err != nil {
				return err
			}
			collected = collected.Add(cod)
			counters["delivered_count"] = m.DeliveredCount + 1
			counters["total_cod_collected"] = collected
			if o.CollectsCash() && cod.GreaterThanOrEqual(o.TotalAmount) {
				orderExtra = map[string]any{"payment_status": order.PaymentStatusPaid}
			}
		case OutcomeRescheduled:
			counters["rescheduled_count"] = m.RescheduledCount + 1
			orderExtra = map[string]any{"current_manifest_id": nil, "rider_id": nil}
		default:
			counters["returned_count"] = m.ReturnedCount + 1
			if err := tx.Model(&rider.Rider{}).Where("id = ?", m.RiderID).
				Update("total_returns", gorm.Expr("total_returns + ?", 1)).Error; err != nil {
				return apperror.Database("update rider returns", err)
			}
		}

		if err := order.Transition(tx, o, orderStatusFor(req.Outcome), orderExtra, comment, actorID); err != nil {
			return err
		}

		return updateManifest(tx, m, afterOutcome(m, m.PendingCount()-1, collected, counters), counters)
	})
	if err != nil {
		return nil, err
	}

	if change != nil && change.Delta.IsPositive() {
		s.riders.LogChange(ctx, change, rider.Entry{
			Reason:        rider.ReasonCODCollected,
			ReferenceType: "manifest",
			ReferenceID:   manifestID,
			CreatedBy:     actorID,
		})
	}

	return s.GetManifest(ctx, manifestID)
}

// RescheduleOrder takes a pending order off the run. The order goes back to
// ready and its packed units return to stock, so packing it again deducts once.
func (s *Service) RescheduleOrder(ctx context.Context, manifestID, orderID uint, actorID uint) (*Manifest, error) {
	release, err := s.locker.Acquire(ctx, lock.Key("manifest", manifestID))
	if err != nil {
		return nil, err
	}
	defer release()

	var restocked []uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockManifest(tx, manifestID)
		if err != nil {
			return err
		}
		if m.Status != ManifestStatusOpen && !m.TakesOutcomes() {
			return apperror.InvalidState("MANIFEST_CLOSED",
				fmt.Sprintf("orders can only be rescheduled from an open or dispatched manifest, %s is %s", m.ManifestNumber, m.Status))
		}

		item, err := findItem(m, orderID)
		if err != nil {
			return err
		}
		if item.Outcome != OutcomePending {
			return apperror.Conflict("OUTCOME_ALREADY_RECORDED",
				fmt.Sprintf("order %d already has outcome %s on manifest %s", orderID, item.Outcome, m.ManifestNumber))
		}

		res := tx.Model(&ManifestItem{}).
			Where("id = ? AND outcome = ?", item.ID, OutcomePending).
			Updates(map[string]any{
				"outcome":             OutcomeRescheduled,
				"removed":             true,
				"outcome_recorded_by": actorID,
				"outcome_recorded_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return apperror.Database("remove manifest item", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("OUTCOME_ALREADY_RECORDED", fmt.Sprintf("order %d already has an outcome", orderID))
		}

		o, err := order.Lock(tx, orderID)
		if err != nil {
			return err
		}
		if err := order.Transition(tx, o, order.OrderStatusReady,
			map[string]any{"current_manifest_id": nil, "rider_id": nil},
			"Rescheduled off "+m.ManifestNumber, actorID); err != nil {
			return err
		}

		for _, line := range o.Items {
			if _, err := s.ledger.Apply(ctx, tx, inventory.Movement{
				VariantID:     line.VariantID,
				Type:          inventory.MovementTypeInward,
				Delta:         line.Quantity,
				ReferenceType: inventory.ReferenceOrderReschedule,
				ReferenceID:   o.ID,
				Notes:         o.OrderNumber + " rescheduled off " + m.ManifestNumber,
				CreatedBy:     actorID,
			}); err != nil {
				return err
			}
			restocked = append(restocked, line.VariantID)
		}

		counters := map[string]any{
			"total_orders":       m.TotalOrders - 1,
			"rescheduled_count":  m.RescheduledCount + 1,
			"total_cod_expected": m.TotalCODExpected.Sub(item.CODAmount),
		}
		return updateManifest(tx, m, afterOutcome(m, m.PendingCount()-1, m.TotalCODCollected, counters), counters)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.CheckAlerts(ctx, restocked...)

	return s.GetManifest(ctx, manifestID)
}

// afterOutcome picks the status a run moves to once one more item is closed.
// Only a run that already took cash can settle here; the variance is kept
// current in counters.
func afterOutcome(m *Manifest, pending int, collected decimal.Decimal, counters map[string]any) ManifestStatus {
	if m.Status != ManifestStatusPartiallySettled {
		return m.Status
	}
	variance := collected.Sub(m.CashReceived)
	counters["settlement_variance"] = variance
	if pending == 0 && !variance.IsPositive() {
		counters["settled_at"] = time.Now().UTC()
		return ManifestStatusSettled
	}
	return m.Status
}

// SETTLEMENT HOOK

// ApplyCash books a rider deposit against a manifest inside the caller's
// transaction. The manifest settles once nothing is pending and the cash
// covers what was collected.
func ApplyCash(tx *gorm.DB, manifestID, riderID uint, amount decimal.Decimal) (*Manifest, error) {
	m, err := lockManifest(tx, manifestID)
	if err != nil {
		return nil, err
	}
	if m.RiderID != riderID {
		return nil, apperror.Validation("settlement is invalid", apperror.FieldError{
			Field:   "manifest_id",
			Message: fmt.Sprintf("manifest %s belongs to another rider", m.ManifestNumber),
		})
	}
	if m.Status != ManifestStatusDispatched && m.Status != ManifestStatusPartiallySettled {
		return nil, apperror.InvalidState("MANIFEST_NOT_SETTLEABLE",
			fmt.Sprintf("manifest %s is %s and cannot take a settlement", m.ManifestNumber, m.Status))
	}

	cash := m.CashReceived.Add(amount)
	variance := m.TotalCODCollected.Sub(cash)

	to := ManifestStatusPartiallySettled
	updates := map[string]any{
		"cash_received":       cash,
		"settlement_variance": variance,
	}
	if m.PendingCount() == 0 && !variance.IsPositive() {
		to = ManifestStatusSettled
		updates["settled_at"] = time.Now().UTC()
	}

	if err := updateManifest(tx, m, to, updates); err != nil {
		return nil, err
	}

	m.CashReceived = cash
	m.SettlementVariance = variance
	return m, nil
}

// QUERIES

// GetManifest retrieves a manifest with its items and their orders
func (s *Service) GetManifest(ctx context.Context, manifestID uint) (*Manifest, error) {
	var m Manifest
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_number")
		}).
		Preload("Items.Order").
		First(&m, manifestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("manifest", manifestID)
	}
	if err != nil {
		return nil, apperror.Database("load manifest", err)
	}
	return &m, nil
}

// ListManifests retrieves manifests, newest first
func (s *Service) ListManifests(ctx context.Context, req *ListManifestsRequest) ([]Manifest, int64, error) {
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Manifest{})
	if req.RiderID != 0 {
		query = query.Where("rider_id = ?", req.RiderID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.Database("count manifests", err)
	}

	var manifests []Manifest
	if err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&manifests).Error; err != nil {
		return nil, 0, apperror.Database("list manifests", err)
	}

	return manifests, total, nil
}
