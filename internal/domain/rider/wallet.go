package rider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceChange is the outcome of one wallet write
type BalanceChange struct {
	RiderID uint            `json:"rider_id"`
	Delta   decimal.Decimal `json:"delta"`
	Before  decimal.Decimal `json:"balance_before"`
	After   decimal.Decimal `json:"balance_after"`
}

// Entry describes why a balance changed, for the audit log
type Entry struct {
	Reason        string
	ReferenceType string
	ReferenceID   uint
	CreatedBy     uint
}

// Lock loads a rider under a row lock
func Lock(tx *gorm.DB, riderID uint) (*Rider, error) {
	var r Rider
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, riderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("rider", riderID)
	}
	if err != nil {
		return nil, apperror.Database("load rider", err)
	}
	return &r, nil
}

// Adjust moves r's cash balance by delta inside tx. The write is guarded by
// the version r was read at, so a concurrent change makes it fail instead of
// overwriting. extra holds further columns to set in the same statement.
func Adjust(tx *gorm.DB, r *Rider, delta decimal.Decimal, extra map[string]any) (*BalanceChange, error) {
	before := r.CurrentCashBalance
	after := before.Add(delta)
	if after.IsNegative() {
		return nil, apperror.Validation("balance change is invalid", apperror.FieldError{
			Field:   "amount",
			Message: fmt.Sprintf("must not exceed the rider's balance of %s", before.StringFixed(2)),
		})
	}

	updates := map[string]any{
		"current_cash_balance": after,
		"version":              r.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&Rider{}).Where("id = ? AND version = ?", r.ID, r.Version).Updates(updates)
	if res.Error != nil {
		return nil, apperror.Database("update rider balance", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.Conflict("RIDER_BALANCE_CHANGED", fmt.Sprintf("balance of rider %d changed concurrently", r.ID))
	}

	r.CurrentCashBalance = after
	r.Version++

	return &BalanceChange{RiderID: r.ID, Delta: delta, Before: before, After: after}, nil
}

// Service exposes rider reads and the balance audit trail
type Service struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewService creates a new rider service
func NewService(db *gorm.DB, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// LogChange appends the audit row for a committed balance change. The log
// is secondary, so failures are reported as warnings only.
func (s *Service) LogChange(ctx context.Context, change *BalanceChange, entry Entry) {
	log := &RiderBalanceLog{
		RiderID:       change.RiderID,
		Delta:         change.Delta,
		BalanceBefore: change.Before,
		BalanceAfter:  change.After,
		Reason:        entry.Reason,
		ReferenceType: entry.ReferenceType,
		ReferenceID:   entry.ReferenceID,
		CreatedBy:     entry.CreatedBy,
	}
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		s.logger.WithFields(logrus.Fields{
			"rider_id":     change.RiderID,
			"delta":        change.Delta.String(),
			"reason":       entry.Reason,
			"reference_id": entry.ReferenceID,
			"error":        err,
		}).Warn("Failed to write rider balance log")
	}
}

// GetRider retrieves a rider with the current balance
func (s *Service) GetRider(ctx context.Context, riderID uint) (*Rider, error) {
	var r Rider
	err := s.db.WithContext(ctx).First(&r, riderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("rider", riderID)
	}
	if err != nil {
		return nil, apperror.Database("load rider", err)
	}
	return &r, nil
}

// BalanceHistory returns a rider's balance log, newest first
func (s *Service) BalanceHistory(ctx context.Context, riderID uint, page, limit int) ([]RiderBalanceLog, int64, error) {
	if _, err := s.GetRider(ctx, riderID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&RiderBalanceLog{}).Where("rider_id = ?", riderID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.Database("count balance logs", err)
	}

	var logs []RiderBalanceLog
	if err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, apperror.Database("list balance logs", err)
	}

	return logs, total, nil
}
