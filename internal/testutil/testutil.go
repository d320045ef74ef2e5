// Package testutil provides an in-memory database and fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/domain/purchase"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/infrastructure/database/postgres"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Actor is the user id recorded on fixture writes
const Actor uint = 7

// NewDB opens a private in-memory SQLite database with every table migrated
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	// Every connection to :memory: is a fresh database, so keep exactly one
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, postgres.NewMigration(db, logger.Discard()).RunAutoMigrations())
	return db
}

// Config returns a configuration suitable for services under test
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "Ops Ledger", Environment: "test"},
		JWT: config.JWTConfig{
			Secret:            "test-secret-that-is-long-enough-for-hs256",
			AccessTokenExpiry: time.Hour,
		},
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Ledger: config.LedgerConfig{
			PurchasePolicy: config.PurchasePolicyPartial,
		},
	}
}

// NewLedger builds a ledger with an in-process locker
func NewLedger(db *gorm.DB) *inventory.Ledger {
	return inventory.NewLedger(db, lock.NewLocal(), logger.Discard())
}

// Variant creates an active variant and books its opening stock through the ledger
func Variant(t testing.TB, db *gorm.DB, opening int) *inventory.ProductVariant {
	t.Helper()

	v := &inventory.ProductVariant{
		ProductName:       "Test Product",
		SKU:               "SKU-" + uuid.NewString()[:8],
		Name:              "Default",
		CostPrice:         decimal.NewFromInt(100),
		LowStockThreshold: 5,
		IsActive:          true,
	}
	require.NoError(t, db.Create(v).Error)

	if opening > 0 {
		_, err := NewLedger(db).ApplyMovement(context.Background(), inventory.Movement{
			VariantID:     v.ID,
			Type:          inventory.MovementTypeAdjustment,
			Delta:         opening,
			ReferenceType: inventory.ReferenceOpeningStock,
			CreatedBy:     Actor,
		})
		require.NoError(t, err)
		v.CurrentStock = opening
	}
	return v
}

// Stock reads a variant's cached stock
func Stock(t testing.TB, db *gorm.DB, variantID uint) int {
	t.Helper()
	var v inventory.ProductVariant
	require.NoError(t, db.First(&v, variantID).Error)
	return v.CurrentStock
}

// Vendor creates an active vendor
func Vendor(t testing.TB, db *gorm.DB) *purchase.Vendor {
	t.Helper()
	v := &purchase.Vendor{Name: "Vendor " + uuid.NewString()[:6], IsActive: true}
	require.NoError(t, db.Create(v).Error)
	return v
}

// Rider creates an available rider holding the given cash balance
func Rider(t testing.TB, db *gorm.DB, balance int64) *rider.Rider {
	t.Helper()
	r := &rider.Rider{
		Name:               "Rider " + uuid.NewString()[:6],
		Phone:              "03" + uuid.NewString()[:9],
		Status:             rider.RiderStatusAvailable,
		CurrentCashBalance: decimal.NewFromInt(balance),
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

// RiderBalance reads a rider's current cash balance
func RiderBalance(t testing.TB, db *gorm.DB, riderID uint) decimal.Decimal {
	t.Helper()
	var r rider.Rider
	require.NoError(t, db.First(&r, riderID).Error)
	return r.CurrentCashBalance
}

// Line is one order line fixture
type Line struct {
	Variant  *inventory.ProductVariant
	Quantity int
	Price    int64
}

// Order creates an order in the given status with the given lines
func Order(t testing.TB, db *gorm.DB, status order.OrderStatus, method order.PaymentMethod, lines ...Line) *order.Order {
	t.Helper()

	o := &order.Order{
		OrderNumber:   fmt.Sprintf("ORD-%s", uuid.NewString()[:12]),
		CustomerName:  "Customer",
		CustomerPhone: "0300",
		Status:        status,
		PaymentMethod: method,
		PaymentStatus: order.PaymentStatusPending,
	}
	if method == order.PaymentMethodPrepaid {
		o.PaymentStatus = order.PaymentStatusPaid
	}

	total := decimal.Zero
	for _, l := range lines {
		lineTotal := decimal.NewFromInt(l.Price * int64(l.Quantity))
		o.Items = append(o.Items, order.OrderItem{
			VariantID:  l.Variant.ID,
			SKU:        l.Variant.SKU,
			Name:       l.Variant.Name,
			Quantity:   l.Quantity,
			UnitPrice:  decimal.NewFromInt(l.Price),
			TotalPrice: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	o.TotalAmount = total

	require.NoError(t, db.Create(o).Error)
	return o
}

// ReloadOrder reads an order with its lines
func ReloadOrder(t testing.TB, db *gorm.DB, orderID uint) *order.Order {
	t.Helper()
	var o order.Order
	require.NoError(t, db.Preload("Items").First(&o, orderID).Error)
	return &o
}
