package inventory

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reconciliation compares the cached stock with a replay of the ledger
type Reconciliation struct {
	VariantID   uint   `json:"variant_id"`
	SKU         string `json:"sku"`
	CachedStock int    `json:"cached_stock"`
	LedgerStock int    `json:"ledger_stock"`
	Drift       int    `json:"drift"`
	Consistent  bool   `json:"consistent"`
	Repaired    bool   `json:"repaired"`
}

type deltaSum struct {
	VariantID uint
	Total     int
}

func newReconciliation(v ProductVariant, ledgerStock int) Reconciliation {
	return Reconciliation{
		VariantID:   v.ID,
		SKU:         v.SKU,
		CachedStock: v.CurrentStock,
		LedgerStock: ledgerStock,
		Drift:       v.CurrentStock - ledgerStock,
		Consistent:  v.CurrentStock == ledgerStock,
	}
}

func (l *Ledger) ledgerStock(db *gorm.DB, variantID uint) (int, error) {
	var total int
	err := db.Model(&StockMovement{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("variant_id = ?", variantID).
		Scan(&total).Error
	return total, err
}

// Reconcile replays a variant's movements and reports any drift
func (l *Ledger) Reconcile(ctx context.Context, variantID uint) (*Reconciliation, error) {
	variant, err := l.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	total, err := l.ledgerStock(l.db.WithContext(ctx), variantID)
	if err != nil {
		return nil, apperror.Database("sum stock movements", err)
	}

	rec := newReconciliation(*variant, total)
	return &rec, nil
}

// Repair rewrites the cached stock from the ledger. A negative replay is
// reported but never written.
func (l *Ledger) Repair(ctx context.Context, variantID uint) (*Reconciliation, error) {
	release, err := l.locker.Acquire(ctx, lock.Key("variant", variantID))
	if err != nil {
		return nil, err
	}
	defer release()

	var rec Reconciliation
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variant ProductVariant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&variant, variantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("variant", variantID)
			}
			return apperror.Database("load variant", err)
		}

		total, err := l.ledgerStock(tx, variantID)
		if err != nil {
			return apperror.Database("sum stock movements", err)
		}

		rec = newReconciliation(variant, total)
		if rec.Consistent {
			return nil
		}
		if total < 0 {
			return apperror.Conflict("LEDGER_NEGATIVE",
				"ledger replay is negative; the movement log needs manual review")
		}

		if err := tx.Model(&ProductVariant{}).Where("id = ?", variantID).Update("current_stock", total).Error; err != nil {
			return apperror.Database("repair variant stock", err)
		}
		rec.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.Repaired {
		l.logger.WithFields(logrus.Fields{
			"variant_id":   rec.VariantID,
			"cached_stock": rec.CachedStock,
			"ledger_stock": rec.LedgerStock,
		}).Warn("Repaired variant stock from ledger")
	}

	return &rec, nil
}

// AuditAll reconciles every variant and returns the ones that drifted.
// With repair set, each drifted variant is also repaired.
func (l *Ledger) AuditAll(ctx context.Context, repair bool) ([]Reconciliation, error) {
	db := l.db.WithContext(ctx)

	var variants []ProductVariant
	if err := db.Order("id").Find(&variants).Error; err != nil {
		return nil, apperror.Database("list variants", err)
	}

	var sums []deltaSum
	if err := db.Model(&StockMovement{}).
		Select("variant_id, COALESCE(SUM(delta), 0) AS total").
		Group("variant_id").
		Scan(&sums).Error; err != nil {
		return nil, apperror.Database("sum stock movements", err)
	}

	totals := make(map[uint]int, len(sums))
	for _, s := range sums {
		totals[s.VariantID] = s.Total
	}

	var drifted []Reconciliation
	for _, v := range variants {
		rec := newReconciliation(v, totals[v.ID])
		if rec.Consistent {
			continue
		}

		if repair {
			repaired, err := l.Repair(ctx, v.ID)
			if err != nil {
				l.logger.WithFields(logrus.Fields{"variant_id": v.ID, "error": err}).Error("Failed to repair variant stock")
			} else {
				rec = *repaired
			}
		}
		drifted = append(drifted, rec)
	}

	return drifted, nil
}
