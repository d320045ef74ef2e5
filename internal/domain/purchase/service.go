// internal/domain/purchase/service.go
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/batch"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const supplyNumberAttempts = 5

var errSupplyNumberTaken = errors.New("supply number already taken")

// Service handles vendor bills and payments
type Service struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	locker lock.Locker
	config *config.Config
	logger *logrus.Logger
}

// NewService creates a new purchase service
func NewService(db *gorm.DB, ledger *inventory.Ledger, locker lock.Locker, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		db:     db,
		ledger: ledger,
		locker: locker,
		config: cfg,
		logger: logger,
	}
}

// CreatePurchaseRequest represents vendor bill creation data
type CreatePurchaseRequest struct {
	VendorID         uint                  `json:"vendor_id" validate:"required"`
	InvoiceReference string                `json:"invoice_reference" validate:"max=100"`
	Notes            string                `json:"notes"`
	Items            []PurchaseItemRequest `json:"items" validate:"required,min=1,dive"`
}

// PurchaseItemRequest represents one bill line
type PurchaseItemRequest struct {
	VariantID uint            `json:"variant_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// RecordPaymentRequest represents a payment against a bill
type RecordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"omitempty,oneof=cash bank_transfer cheque mobile_wallet"`
	Reference string          `json:"reference" validate:"max=100"`
	Notes     string          `json:"notes"`
}

// ListPurchasesRequest filters the bill listing
type ListPurchasesRequest struct {
	VendorID uint   `form:"vendor_id"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

// PurchaseResult is the bill plus a per-variant account of its stock updates
type PurchaseResult struct {
	Purchase *Purchase                              `json:"purchase"`
	Stock    batch.Result[inventory.MovementResult] `json:"stock"`
}

// PURCHASES

// CreatePurchase records a vendor bill and brings its items into stock
func (s *Service) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest, actorID uint) (*PurchaseResult, error) {
	if err := s.validatePurchase(ctx, req); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.Key("vendor", req.VendorID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result *PurchaseResult
	for attempt := 1; attempt <= supplyNumberAttempts; attempt++ {
		result, err = s.createPurchase(ctx, req, actorID)
		if !errors.Is(err, errSupplyNumberTaken) {
			break
		}
		s.logger.WithField("attempt", attempt).Warn("Supply number collision, retrying")
	}
	if errors.Is(err, errSupplyNumberTaken) {
		return nil, apperror.Conflict("SUPPLY_NUMBER_TAKEN", "could not allocate a supply number, try again")
	}
	if err != nil {
		return nil, err
	}

	if result.Stock.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"purchase_id":   result.Purchase.ID,
			"supply_number": result.Purchase.SupplyNumber,
			"failed_items":  result.Stock.FailedIDs(),
		}).Warn("Purchase recorded with stock failures")
	}

	return result, nil
}

func (s *Service) validatePurchase(ctx context.Context, req *CreatePurchaseRequest) error {
	var fields apperror.Fields
	validation.Collect(req, &fields)

	db := s.db.WithContext(ctx)

	if req.VendorID != 0 {
		var vendor Vendor
		err := db.First(&vendor, req.VendorID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fields.Add("vendor_id", "vendor %d does not exist", req.VendorID)
		case err != nil:
			return apperror.Database("load vendor", err)
		case !vendor.IsActive:
			fields.Add("vendor_id", "vendor %d is inactive", req.VendorID)
		}
	}

	ids := make([]uint, 0, len(req.Items))
	for _, item := range req.Items {
		if item.VariantID != 0 {
			ids = append(ids, item.VariantID)
		}
	}

	known := make(map[uint]bool, len(ids))
	if len(ids) > 0 {
		var found []uint
		if err := db.Model(&inventory.ProductVariant{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
			return apperror.Database("load variants", err)
		}
		for _, id := range found {
			known[id] = true
		}
	}

	for i, item := range req.Items {
		if item.VariantID != 0 && !known[item.VariantID] {
			fields.Add(fmt.Sprintf("items[%d].variant_id", i), "variant %d does not exist", item.VariantID)
		}
		if item.UnitCost.IsNegative() {
			fields.Add(fmt.Sprintf("items[%d].unit_cost", i), "must be at least 0")
		}
	}

	return fields.Err("purchase is invalid")
}

func (s *Service) createPurchase(ctx context.Context, req *CreatePurchaseRequest, actorID uint) (*PurchaseResult, error) {
	atomic := s.config.AtomicPurchases()
	result := &PurchaseResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		supplyNumber, err := nextSupplyNumber(tx, time.Now().UTC().Year())
		if err != nil {
			return apperror.Database("generate supply number", err)
		}

		bill := &Purchase{
			SupplyNumber:     supplyNumber,
			VendorID:         req.VendorID,
			Status:           PurchaseStatusReceived,
			StockStatus:      StockStatusApplied,
			PaidAmount:       decimal.Zero,
			InvoiceReference: req.InvoiceReference,
			Notes:            req.Notes,
			CreatedBy:        actorID,
		}

		total := decimal.Zero
		for _, item := range req.Items {
			lineTotal := item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity)))
			total = total.Add(lineTotal)
			bill.Items = append(bill.Items, PurchaseItem{
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				UnitCost:  item.UnitCost,
				TotalCost: lineTotal,
			})
		}
		bill.TotalAmount = total

		if err := tx.Create(bill).Error; err != nil {
			if isDuplicate(err) {
				return errSupplyNumberTaken
			}
			return apperror.Database("create purchase", err)
		}

		for i := range bill.Items {
			item := &bill.Items[i]

			var applied *inventory.MovementResult
			apply := func(tx *gorm.DB) error {
				var err error
				applied, err = s.receiveItem(ctx, tx, bill, item, actorID)
				return err
			}

			if atomic {
				if err := apply(tx); err != nil {
					return err
				}
			} else if err := tx.Transaction(apply); err != nil {
				// The savepoint is gone; remember why on the line itself.
				item.StockError = apperror.As(err).Message
				if uerr := tx.Model(item).Update("stock_error", item.StockError).Error; uerr != nil {
					return apperror.Database("record purchase item failure", uerr)
				}
				result.Stock.Record(item.VariantID, nil, err)
				continue
			}

			item.StockApplied = true
			result.Stock.Record(item.VariantID, applied, nil)
		}

		switch {
		case result.Stock.Failed == 0:
			bill.StockStatus = StockStatusApplied
		case result.Stock.Succeeded == 0:
			bill.StockStatus = StockStatusFailed
		default:
			bill.StockStatus = StockStatusPartial
		}
		if bill.StockStatus != StockStatusApplied {
			if err := tx.Model(bill).Update("stock_status", bill.StockStatus).Error; err != nil {
				return apperror.Database("update purchase stock status", err)
			}
		}

		if err := adjustVendorBalance(tx, bill.VendorID, bill.TotalAmount); err != nil {
			return err
		}

		result.Purchase = bill
		return nil
	})
	if err != nil {
		return nil, err
	}

	received := make([]uint, 0, len(req.Items))
	for _, item := range req.Items {
		received = append(received, item.VariantID)
	}
	s.ledger.CheckAlerts(ctx, received...)

	return result, nil
}

// receiveItem books one line into stock and takes its cost as the variant's latest cost
func (s *Service) receiveItem(ctx context.Context, tx *gorm.DB, bill *Purchase, item *PurchaseItem, actorID uint) (*inventory.MovementResult, error) {
	var active []bool
	if err := tx.Model(&inventory.ProductVariant{}).
		Where("id = ?", item.VariantID).
		Pluck("is_active", &active).Error; err != nil {
		return nil, apperror.Database("load variant", err)
	}
	if len(active) == 0 || !active[0] {
		return nil, apperror.BadRequest("VARIANT_INACTIVE",
			fmt.Sprintf("variant %d is inactive and cannot receive stock", item.VariantID))
	}

	applied, err := s.ledger.Apply(ctx, tx, inventory.Movement{
		VariantID:     item.VariantID,
		Type:          inventory.MovementTypeInward,
		Delta:         item.Quantity,
		ReferenceType: inventory.ReferencePurchase,
		ReferenceID:   bill.ID,
		Notes:         bill.SupplyNumber,
		CreatedBy:     actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&inventory.ProductVariant{}).
		Where("id = ?", item.VariantID).
		Update("cost_price", item.UnitCost).Error; err != nil {
		return nil, apperror.Database("update variant cost price", err)
	}

	if err := tx.Model(item).Update("stock_applied", true).Error; err != nil {
		return nil, apperror.Database("mark purchase item applied", err)
	}

	return applied, nil
}

// nextSupplyNumber returns SUP-<year>-NNNN, one past the highest suffix issued this year
func nextSupplyNumber(tx *gorm.DB, year int) (string, error) {
	prefix := fmt.Sprintf("SUP-%d-", year)

	var latest []string
	err := tx.Model(&Purchase{}).
		Where("supply_number LIKE ?", prefix+"%").
		Order("LENGTH(supply_number) DESC, supply_number DESC").
		Limit(1).
		Pluck("supply_number", &latest).Error
	if err != nil {
		return "", err
	}

	next := 1
	if len(latest) > 0 {
		if n, err := strconv.Atoi(strings.TrimPrefix(latest[0], prefix)); err == nil {
			next = n + 1
		}
	}

	return fmt.Sprintf("%s%04d", prefix, next), nil
}

// adjustVendorBalance moves a vendor's payable balance with a version check
func adjustVendorBalance(tx *gorm.DB, vendorID uint, delta decimal.Decimal) error {
	var vendor Vendor
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&vendor, vendorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("vendor", vendorID)
		}
		return apperror.Database("load vendor", err)
	}

	res := tx.Model(&Vendor{}).
		Where("id = ? AND version = ?", vendor.ID, vendor.Version).
		Updates(map[string]any{
			"balance": vendor.Balance.Add(delta),
			"version": vendor.Version + 1,
		})
	if res.Error != nil {
		return apperror.Database("update vendor balance", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("VENDOR_BALANCE_CHANGED", fmt.Sprintf("balance of vendor %d changed concurrently", vendorID))
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// PAYMENTS

// RecordPayment pays down a bill and the vendor's balance
func (s *Service) RecordPayment(ctx context.Context, purchaseID uint, req *RecordPaymentRequest, actorID uint) (*Purchase, error) {
	var fields apperror.Fields
	validation.Collect(req, &fields)
	if !req.Amount.IsPositive() {
		fields.Add("amount", "must be greater than 0")
	}
	if err := fields.Err("payment is invalid"); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.Key("purchase", purchaseID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill Purchase
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bill, purchaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("purchase", purchaseID)
			}
			return apperror.Database("load purchase", err)
		}

		if bill.IsPaid() {
			return apperror.BadRequest("PURCHASE_ALREADY_PAID", fmt.Sprintf("purchase %s is already paid", bill.SupplyNumber))
		}
		outstanding := bill.Outstanding()
		if req.Amount.GreaterThan(outstanding) {
			return apperror.Validation("payment is invalid", apperror.FieldError{
				Field:   "amount",
				Message: fmt.Sprintf("must not exceed the outstanding %s", outstanding.StringFixed(2)),
			})
		}

		paid := bill.PaidAmount.Add(req.Amount)
		status := PurchaseStatusPartial
		if paid.Equal(bill.TotalAmount) {
			status = PurchaseStatusPaid
		}

		res := tx.Model(&Purchase{}).
			Where("id = ? AND version = ?", bill.ID, bill.Version).
			Updates(map[string]any{
				"paid_amount": paid,
				"status":      status,
				"version":     bill.Version + 1,
			})
		if res.Error != nil {
			return apperror.Database("update purchase", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("PURCHASE_CHANGED", fmt.Sprintf("purchase %d changed concurrently", bill.ID))
		}

		payment := &VendorPayment{
			PurchaseID: bill.ID,
			VendorID:   bill.VendorID,
			Amount:     req.Amount,
			Method:     req.Method,
			Reference:  req.Reference,
			Notes:      req.Notes,
			CreatedBy:  actorID,
		}
		if err := tx.Create(payment).Error; err != nil {
			return apperror.Database("record vendor payment", err)
		}

		return adjustVendorBalance(tx, bill.VendorID, req.Amount.Neg())
	})
	if err != nil {
		return nil, err
	}

	return s.GetPurchase(ctx, purchaseID)
}

// QUERIES

// GetPurchase retrieves a bill with its vendor, items and payments
func (s *Service) GetPurchase(ctx context.Context, purchaseID uint) (*Purchase, error) {
	var bill Purchase
	err := s.db.WithContext(ctx).
		Preload("Vendor").
		Preload("Items").
		Preload("Payments").
		First(&bill, purchaseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("purchase", purchaseID)
	}
	if err != nil {
		return nil, apperror.Database("load purchase", err)
	}
	return &bill, nil
}

// ListPurchases retrieves bills, newest first
func (s *Service) ListPurchases(ctx context.Context, req *ListPurchasesRequest) ([]Purchase, int64, error) {
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Purchase{})
	if req.VendorID != 0 {
		query = query.Where("vendor_id = ?", req.VendorID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.Database("count purchases", err)
	}

	var purchases []Purchase
	if err := query.Preload("Vendor").Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&purchases).Error; err != nil {
		return nil, 0, apperror.Database("list purchases", err)
	}

	return purchases, total, nil
}

// GetVendor retrieves a vendor with its current balance
func (s *Service) GetVendor(ctx context.Context, vendorID uint) (*Vendor, error) {
	var vendor Vendor
	err := s.db.WithContext(ctx).First(&vendor, vendorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("vendor", vendorID)
	}
	if err != nil {
		return nil, apperror.Database("load vendor", err)
	}
	return &vendor, nil
}
