// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the only writer of ProductVariant.CurrentStock
type Ledger struct {
	db     *gorm.DB
	locker lock.Locker
	logger *logrus.Logger
}

// NewLedger creates a new stock ledger
func NewLedger(db *gorm.DB, locker lock.Locker, logger *logrus.Logger) *Ledger {
	return &Ledger{
		db:     db,
		locker: locker,
		logger: logger,
	}
}

// Movement describes one requested stock change
type Movement struct {
	VariantID     uint
	Type          MovementType
	Delta         int
	Quantity      int // defaults to |Delta|; required for zero-delta damage
	ReferenceType string
	ReferenceID   uint
	Notes         string
	CreatedBy     uint
}

// MovementResult is what a caller gets back from a successful movement
type MovementResult struct {
	StockBefore int            `json:"stock_before"`
	StockAfter  int            `json:"stock_after"`
	Movement    *StockMovement `json:"movement"`
}

func (m Movement) quantity() int {
	if m.Quantity > 0 {
		return m.Quantity
	}
	if m.Delta < 0 {
		return -m.Delta
	}
	return m.Delta
}

func (m Movement) validate() error {
	var fields apperror.Fields

	if m.VariantID == 0 {
		fields.Add("variant_id", "is required")
	}

	switch m.Type {
	case MovementTypeInward:
		if m.Delta <= 0 {
			fields.Add("delta", "must be positive for inward movements")
		}
	case MovementTypeOutward:
		if m.Delta >= 0 {
			fields.Add("delta", "must be negative for outward movements")
		}
	case MovementTypeDamage:
		if m.Delta > 0 {
			fields.Add("delta", "must not be positive for damage movements")
		}
	case MovementTypeAdjustment:
		if m.Delta == 0 {
			fields.Add("delta", "must not be zero for adjustments")
		}
	default:
		fields.Add("movement_type", "must be one of inward outward damage adjustment")
	}

	if m.quantity() <= 0 {
		fields.Add("quantity", "must be greater than 0")
	}
	if m.CreatedBy == 0 {
		fields.Add("created_by", "is required")
	}

	return fields.Err("stock movement is invalid")
}

// STOCK MOVEMENTS

// Apply changes a variant's stock and appends the ledger row inside the
// caller's transaction. The variant row is locked, and the stock write is a
// compare-and-swap on the value that was read.
func (l *Ledger) Apply(ctx context.Context, tx *gorm.DB, m Movement) (*MovementResult, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	tx = tx.WithContext(ctx)

	var variant ProductVariant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&variant, m.VariantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("variant", m.VariantID)
	}
	if err != nil {
		return nil, apperror.Database("load variant", err)
	}

	before := variant.CurrentStock
	after := before + m.Delta
	if after < 0 {
		return nil, apperror.InsufficientStock(variant.ID, before, -m.Delta)
	}

	if m.Delta != 0 {
		res := tx.Model(&ProductVariant{}).
			Where("id = ? AND current_stock = ?", variant.ID, before).
			Update("current_stock", after)
		if res.Error != nil {
			return nil, apperror.Database("update variant stock", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperror.Conflict("STOCK_CHANGED", fmt.Sprintf("stock of variant %d changed concurrently", variant.ID))
		}
	}

	movement := &StockMovement{
		VariantID:     variant.ID,
		MovementType:  m.Type,
		Quantity:      m.quantity(),
		Delta:         m.Delta,
		StockBefore:   before,
		StockAfter:    after,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Notes:         m.Notes,
		CreatedBy:     m.CreatedBy,
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, apperror.Database("record stock movement", err)
	}

	return &MovementResult{StockBefore: before, StockAfter: after, Movement: movement}, nil
}

// ApplyMovement runs a single movement in its own transaction
func (l *Ledger) ApplyMovement(ctx context.Context, m Movement) (*MovementResult, error) {
	release, err := l.locker.Acquire(ctx, lock.Key("variant", m.VariantID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result *MovementResult
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = l.Apply(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	if m.Delta != 0 {
		l.CheckAlerts(ctx, m.VariantID)
	}

	return result, nil
}

// WriteOffDamage removes damaged on-hand units from stock
func (l *Ledger) WriteOffDamage(ctx context.Context, variantID uint, quantity int, notes string, actorID uint) (*MovementResult, error) {
	if quantity <= 0 {
		return nil, apperror.Validation("damage write-off is invalid",
			apperror.FieldError{Field: "quantity", Message: "must be greater than 0"})
	}

	return l.ApplyMovement(ctx, Movement{
		VariantID:     variantID,
		Type:          MovementTypeDamage,
		Delta:         -quantity,
		ReferenceType: ReferenceDamageWriteOff,
		Notes:         notes,
		CreatedBy:     actorID,
	})
}

// Adjust applies a stock-count correction
func (l *Ledger) Adjust(ctx context.Context, variantID uint, delta int, notes string, actorID uint) (*MovementResult, error) {
	return l.ApplyMovement(ctx, Movement{
		VariantID:     variantID,
		Type:          MovementTypeAdjustment,
		Delta:         delta,
		ReferenceType: ReferenceStockCount,
		Notes:         notes,
		CreatedBy:     actorID,
	})
}

// QUERIES

// GetVariant returns a variant with its cached stock
func (l *Ledger) GetVariant(ctx context.Context, variantID uint) (*ProductVariant, error) {
	var variant ProductVariant
	err := l.db.WithContext(ctx).First(&variant, variantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("variant", variantID)
	}
	if err != nil {
		return nil, apperror.Database("load variant", err)
	}
	return &variant, nil
}

// History returns a variant's movements, newest first
func (l *Ledger) History(ctx context.Context, variantID uint, page, limit int) ([]StockMovement, int64, error) {
	if _, err := l.GetVariant(ctx, variantID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := l.db.WithContext(ctx).Model(&StockMovement{}).Where("variant_id = ?", variantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.Database("count stock movements", err)
	}

	var movements []StockMovement
	err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&movements).Error
	if err != nil {
		return nil, 0, apperror.Database("list stock movements", err)
	}

	return movements, total, nil
}

// ALERTS

// CheckAlerts keeps one open alert per variant in step with its stock: a low
// or out of stock alert is opened when needed and resolved once stock moves
// out of that band. Failures are logged and never returned.
func (l *Ledger) CheckAlerts(ctx context.Context, variantIDs ...uint) {
	for _, id := range variantIDs {
		if err := l.checkAlert(ctx, id); err != nil {
			l.logger.WithFields(logrus.Fields{
				"variant_id": id,
				"error":      err,
			}).Warn("Failed to record stock alert")
		}
	}
}

func (l *Ledger) checkAlert(ctx context.Context, variantID uint) error {
	db := l.db.WithContext(ctx)

	var variant ProductVariant
	if err := db.First(&variant, variantID).Error; err != nil {
		return err
	}

	alertType := ""
	switch {
	case variant.IsOutOfStock():
		alertType = AlertTypeOutOfStock
	case variant.IsLowStock():
		alertType = AlertTypeLowStock
	}

	now := time.Now().UTC()
	if err := db.Model(&StockAlert{}).
		Where("variant_id = ? AND is_resolved = ? AND alert_type <> ?", variantID, false, alertType).
		Updates(map[string]any{"is_resolved": true, "resolved_at": now}).Error; err != nil {
		return err
	}
	if alertType == "" {
		return nil
	}

	var open int64
	if err := db.Model(&StockAlert{}).
		Where("variant_id = ? AND alert_type = ? AND is_resolved = ?", variantID, alertType, false).
		Count(&open).Error; err != nil {
		return err
	}
	if open > 0 {
		return nil
	}

	return db.Create(&StockAlert{
		VariantID: variantID,
		AlertType: alertType,
		Message:   fmt.Sprintf("%s (%s) has %d units left", variant.Name, variant.SKU, variant.CurrentStock),
	}).Error
}

// OpenAlerts lists unresolved stock alerts
func (l *Ledger) OpenAlerts(ctx context.Context) ([]StockAlert, error) {
	var alerts []StockAlert
	if err := l.db.WithContext(ctx).Where("is_resolved = ?", false).Order("id DESC").Find(&alerts).Error; err != nil {
		return nil, apperror.Database("list stock alerts", err)
	}
	return alerts, nil
}
