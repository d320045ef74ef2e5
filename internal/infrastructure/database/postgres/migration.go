// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/ops-ledger/internal/domain/dispatch"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/domain/purchase"
	"github.com/your-org/ops-ledger/internal/domain/returns"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/domain/settlement"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"gorm.io/gorm"
)

// seedActorID is recorded as created_by on development seed rows
const seedActorID uint = 1

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger *logrus.Logger) *Migration {
	return &Migration{
		db:     db,
		logger: logger,
	}
}

// Models lists every table in dependency order
func Models() []any {
	return []any{
		// Inventory - Base tables
		&inventory.ProductVariant{},
		&inventory.StockMovement{},
		&inventory.StockAlert{},

		// Purchasing
		&purchase.Vendor{},
		&purchase.Purchase{},
		&purchase.PurchaseItem{},
		&purchase.VendorPayment{},

		// Orders
		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},

		// Riders and dispatch
		&rider.Rider{},
		&rider.RiderBalanceLog{},
		&dispatch.Manifest{},
		&dispatch.ManifestItem{},

		// Returns and settlements
		&returns.ReturnRecord{},
		&returns.ReturnItem{},
		&settlement.Settlement{},
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running database auto-migrations")

	for _, model := range Models() {
		m.logger.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes for the hot query paths
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		// Ledger replay and history
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_variant_id_desc ON stock_movements(variant_id, id DESC)",
		"CREATE INDEX IF NOT EXISTS idx_stock_alerts_open ON stock_alerts(variant_id, alert_type, is_resolved)",

		// Purchases
		"CREATE INDEX IF NOT EXISTS idx_purchases_vendor_status ON purchases(vendor_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase_variant ON purchase_items(purchase_id, variant_id)",

		// Orders
		"CREATE INDEX IF NOT EXISTS idx_orders_status_manifest ON orders(status, current_manifest_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

		// Dispatch
		"CREATE INDEX IF NOT EXISTS idx_manifests_rider_status ON manifests(rider_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_manifest_items_manifest_outcome ON manifest_items(manifest_id, outcome)",

		// Cash
		"CREATE INDEX IF NOT EXISTS idx_rider_balance_logs_rider ON rider_balance_logs(rider_id, id DESC)",
		"CREATE INDEX IF NOT EXISTS idx_settlements_rider_status ON settlements(rider_id, status)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("Failed to create index")
			failCount++
		} else {
			successCount++
		}
	}

	m.logger.WithFields(logrus.Fields{"created": successCount, "failed": failCount}).Info("Database indexes ensured")
	return nil
}

// SeedInitialData inserts development data
func (m *Migration) SeedInitialData() error {
	m.logger.Info("Seeding initial data")

	if err := m.seedVendors(); err != nil {
		return fmt.Errorf("failed to seed vendors: %w", err)
	}

	if err := m.seedVariants(); err != nil {
		return fmt.Errorf("failed to seed variants: %w", err)
	}

	if err := m.seedRiders(); err != nil {
		return fmt.Errorf("failed to seed riders: %w", err)
	}

	if err := m.seedOrders(); err != nil {
		return fmt.Errorf("failed to seed orders: %w", err)
	}

	m.logger.Info("Initial data seeded successfully")
	return nil
}

func (m *Migration) seedVendors() error {
	vendors := []purchase.Vendor{
		{Name: "Default Supplier", ContactPerson: "Supply Desk", Phone: "0300000001", IsActive: true},
		{Name: "Packaging Co", ContactPerson: "Accounts", Phone: "0300000002", IsActive: true},
	}

	for _, vendor := range vendors {
		var existing purchase.Vendor
		err := m.db.Where("name = ?", vendor.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := m.db.Create(&vendor).Error; err != nil {
				return err
			}
			m.logger.WithField("vendor", vendor.Name).Info("Created vendor")
		} else if err != nil {
			return err
		}
	}
	return nil
}

// seedVariants books opening stock through the ledger so replay matches the cache
func (m *Migration) seedVariants() error {
	ledger := inventory.NewLedger(m.db, lock.NewLocal(), m.logger)

	variants := []struct {
		variant inventory.ProductVariant
		opening int
	}{
		{inventory.ProductVariant{ProductName: "Cotton Tee", SKU: "TEE-BLK-M", Name: "Black / M", CostPrice: decimal.NewFromInt(450), LowStockThreshold: 5, IsActive: true}, 40},
		{inventory.ProductVariant{ProductName: "Cotton Tee", SKU: "TEE-WHT-L", Name: "White / L", CostPrice: decimal.NewFromInt(450), LowStockThreshold: 5, IsActive: true}, 25},
		{inventory.ProductVariant{ProductName: "Canvas Tote", SKU: "TOTE-NAT", Name: "Natural", CostPrice: decimal.NewFromInt(300), LowStockThreshold: 3, IsActive: true}, 10},
	}

	for _, v := range variants {
		var existing inventory.ProductVariant
		err := m.db.Where("sku = ?", v.variant.SKU).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		variant := v.variant
		if err := m.db.Create(&variant).Error; err != nil {
			return err
		}
		if _, err := ledger.ApplyMovement(context.Background(), inventory.Movement{
			VariantID:     variant.ID,
			Type:          inventory.MovementTypeAdjustment,
			Delta:         v.opening,
			ReferenceType: inventory.ReferenceOpeningStock,
			Notes:         "development seed",
			CreatedBy:     seedActorID,
		}); err != nil {
			return err
		}
		m.logger.WithFields(logrus.Fields{"sku": variant.SKU, "stock": v.opening}).Info("Created variant")
	}
	return nil
}

func (m *Migration) seedRiders() error {
	riders := []rider.Rider{
		{Name: "Ali Raza", Phone: "0311000001", Status: rider.RiderStatusAvailable},
		{Name: "Sana Iqbal", Phone: "0311000002", Status: rider.RiderStatusAvailable},
	}

	for _, r := range riders {
		var existing rider.Rider
		err := m.db.Where("phone = ?", r.Phone).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := m.db.Create(&r).Error; err != nil {
				return err
			}
			m.logger.WithField("rider", r.Name).Info("Created rider")
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) seedOrders() error {
	var count int64
	if err := m.db.Model(&order.Order{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var tee inventory.ProductVariant
	if err := m.db.Where("sku = ?", "TEE-BLK-M").First(&tee).Error; err != nil {
		return err
	}

	orders := []order.Order{
		{
			OrderNumber:   "ORD-SEED-00001",
			CustomerName:  "Hina Khan",
			CustomerPhone: "0322000001",
			Status:        order.OrderStatusConfirmed,
			PaymentMethod: order.PaymentMethodCOD,
			PaymentStatus: order.PaymentStatusPending,
			TotalAmount:   decimal.NewFromInt(1800),
			Items: []order.OrderItem{
				{VariantID: tee.ID, SKU: tee.SKU, Name: tee.Name, Quantity: 2, UnitPrice: decimal.NewFromInt(900), TotalPrice: decimal.NewFromInt(1800)},
			},
		},
		{
			OrderNumber:   "ORD-SEED-00002",
			CustomerName:  "Usman Tariq",
			CustomerPhone: "0322000002",
			Status:        order.OrderStatusReady,
			PaymentMethod: order.PaymentMethodPrepaid,
			PaymentStatus: order.PaymentStatusPaid,
			TotalAmount:   decimal.NewFromInt(900),
			Items: []order.OrderItem{
				{VariantID: tee.ID, SKU: tee.SKU, Name: tee.Name, Quantity: 1, UnitPrice: decimal.NewFromInt(900), TotalPrice: decimal.NewFromInt(900)},
			},
		},
	}

	for i := range orders {
		if err := m.db.Create(&orders[i]).Error; err != nil {
			return err
		}
	}

	m.logger.WithField("orders", len(orders)).Info("Created sample orders")
	return nil
}

// GetTableInfo logs the row count of every table
func (m *Migration) GetTableInfo() error {
	tables, err := m.db.Migrator().GetTables()
	if err != nil {
		return err
	}

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		if err := m.db.Table(table).Count(&count).Error; err != nil {
			m.logger.WithError(err).WithField("table", table).Warn("Failed to count table")
			continue
		}
		totalRecords += count
		m.logger.WithFields(logrus.Fields{"table": table, "records": count}).Debug("Table info")
	}

	m.logger.WithFields(logrus.Fields{"tables": len(tables), "records": totalRecords}).Info("Database tables information")
	return nil
}

// DropAllTables drops every table, used by local resets
func (m *Migration) DropAllTables() error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := m.db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", models[i], err)
		}
	}
	return nil
}
