// internal/domain/settlement/service.go
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/dispatch"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/batch"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service turns rider deposits into balance reductions
type Service struct {
	db     *gorm.DB
	riders *rider.Service
	locker lock.Locker
	logger *logrus.Logger
}

// NewService creates a new settlement service
func NewService(db *gorm.DB, riders *rider.Service, locker lock.Locker, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		riders: riders,
		locker: locker,
		logger: logger,
	}
}

// CreateSettlementRequest represents a rider deposit
type CreateSettlementRequest struct {
	RiderID          uint            `json:"rider_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	ManifestID       *uint           `json:"manifest_id"`
	DepositReference string          `json:"deposit_reference" validate:"max=64"`
	Notes            string          `json:"notes"`
}

// BulkSettlementRequest represents deposits from several riders
type BulkSettlementRequest struct {
	Settlements []CreateSettlementRequest `json:"settlements" validate:"required,min=1"`
}

// ListSettlementsRequest filters the settlement listing
type ListSettlementsRequest struct {
	RiderID uint   `form:"rider_id"`
	Status  string `form:"status"`
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
}

func generateDepositReference() string {
	return "DEP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// CreateSettlement records a deposit and takes it off the rider's balance in
// the same transaction. A deposit may never exceed what the rider holds.
func (s *Service) CreateSettlement(ctx context.Context, req *CreateSettlementRequest, actorID uint) (*Settlement, error) {
	var fields apperror.Fields
	validation.Collect(req, &fields)
	if !req.Amount.IsPositive() {
		fields.Add("amount", "must be greater than 0")
	}
	if err := fields.Err("settlement is invalid"); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.Key("rider", req.RiderID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.riders.GetRider(ctx, req.RiderID)
	if err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(current.CurrentCashBalance) {
		return nil, apperror.Validation("settlement is invalid", apperror.FieldError{
			Field:   "amount",
			Message: fmt.Sprintf("must not exceed the rider's balance of %s", current.CurrentCashBalance.StringFixed(2)),
		})
	}

	reference := req.DepositReference
	if reference == "" {
		reference = generateDepositReference()
	}

	var (
		record *Settlement
		change *rider.BalanceChange
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m *dispatch.Manifest
		if req.ManifestID != nil {
			var err error
			if m, err = dispatch.ApplyCash(tx, *req.ManifestID, req.RiderID, req.Amount); err != nil {
				return err
			}
		}

		r, err := rider.Lock(tx, req.RiderID)
		if err != nil {
			return err
		}
		change, err = rider.Adjust(tx, r, req.Amount.Neg(), nil)
		if err != nil {
			return err
		}

		record = &Settlement{
			RiderID:           r.ID,
			ManifestID:        req.ManifestID,
			TotalCODCollected: change.Before,
			AmountDeposited:   req.Amount,
			BalanceBefore:     change.Before,
			BalanceAfter:      change.After,
			Variance:          change.After,
			Status:            SettlementStatusPending,
			DepositReference:  reference,
			Notes:             req.Notes,
			CreatedBy:         actorID,
		}
		if m != nil {
			record.TotalCODCollected = m.TotalCODCollected
			record.Variance = m.SettlementVariance
		}

		if err := tx.Create(record).Error; err != nil {
			if isDuplicate(err) {
				return apperror.Conflict("DEPOSIT_REFERENCE_TAKEN", fmt.Sprintf("deposit reference %s is already used", reference))
			}
			return apperror.Database("create settlement", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.riders.LogChange(ctx, change, rider.Entry{
		Reason:        rider.ReasonSettlement,
		ReferenceType: "settlement",
		ReferenceID:   record.ID,
		CreatedBy:     actorID,
	})

	return record, nil
}

// BulkCreateSettlements settles each rider on its own and reports a tally
func (s *Service) BulkCreateSettlements(ctx context.Context, req *BulkSettlementRequest, actorID uint) (*batch.Result[Settlement], error) {
	if err := validation.Struct(req, "bulk settlement is invalid"); err != nil {
		return nil, err
	}

	result := &batch.Result[Settlement]{}
	for i := range req.Settlements {
		unit := &req.Settlements[i]
		created, err := s.CreateSettlement(ctx, unit, actorID)
		result.Record(unit.RiderID, created, err)
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(req.Settlements),
		"settled":   result.Succeeded,
		"failed":    result.Failed,
	}).Info("Bulk settlement finished")

	return result, nil
}

// VerifySettlement confirms a deposit; verification happens once
func (s *Service) VerifySettlement(ctx context.Context, settlementID uint, actorID uint) (*Settlement, error) {
	var record Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, settlementID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("settlement", settlementID)
			}
			return apperror.Database("load settlement", err)
		}

		if record.IsVerified() {
			return apperror.BadRequest("SETTLEMENT_ALREADY_VERIFIED",
				fmt.Sprintf("settlement %s is already verified", record.DepositReference))
		}

		now := time.Now().UTC()
		res := tx.Model(&Settlement{}).
			Where("id = ? AND status = ?", record.ID, record.Status).
			Updates(map[string]any{
				"status":      SettlementStatusVerified,
				"verified_by": actorID,
				"verified_at": now,
			})
		if res.Error != nil {
			return apperror.Database("verify settlement", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("SETTLEMENT_CHANGED", fmt.Sprintf("settlement %d changed concurrently", record.ID))
		}

		record.Status = SettlementStatusVerified
		record.VerifiedBy = &actorID
		record.VerifiedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ListSettlements retrieves settlements, newest first
func (s *Service) ListSettlements(ctx context.Context, req *ListSettlementsRequest) ([]Settlement, int64, error) {
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Settlement{})
	if req.RiderID != 0 {
		query = query.Where("rider_id = ?", req.RiderID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.Database("count settlements", err)
	}

	var settlements []Settlement
	if err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&settlements).Error; err != nil {
		return nil, 0, apperror.Database("list settlements", err)
	}

	return settlements, total, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
