package purchase_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/purchase"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/batch"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"github.com/your-org/ops-ledger/internal/testutil"
	"gorm.io/gorm"
)

func newService(db *gorm.DB, policy string) *purchase.Service {
	cfg := testutil.Config()
	cfg.Ledger.PurchasePolicy = policy
	return purchase.NewService(db, testutil.NewLedger(db), lock.NewLocal(), cfg, logger.Discard())
}

func deactivate(t *testing.T, db *gorm.DB, variantID uint) {
	t.Helper()
	require.NoError(t, db.Model(&inventory.ProductVariant{}).Where("id = ?", variantID).Update("is_active", false).Error)
}

func TestCreatePurchaseBooksStockAndVendorBalance(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)

	vendor := testutil.Vendor(t, db)
	tee := testutil.Variant(t, db, 5)
	tote := testutil.Variant(t, db, 0)

	result, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
		VendorID:         vendor.ID,
		InvoiceReference: "INV-9",
		Items: []purchase.PurchaseItemRequest{
			{VariantID: tee.ID, Quantity: 10, UnitCost: decimal.NewFromInt(120)},
			{VariantID: tote.ID, Quantity: 4, UnitCost: decimal.RequireFromString("80.50")},
		},
	}, testutil.Actor)
	require.NoError(t, err)

	bill := result.Purchase
	assert.Equal(t, fmt.Sprintf("SUP-%d-0001", time.Now().UTC().Year()), bill.SupplyNumber)
	assert.Equal(t, purchase.PurchaseStatusReceived, bill.Status)
	assert.Equal(t, purchase.StockStatusApplied, bill.StockStatus)
	assert.True(t, bill.TotalAmount.Equal(decimal.RequireFromString("1522")))

	assert.Equal(t, 2, result.Stock.Succeeded)
	assert.Zero(t, result.Stock.Failed)
	assert.Equal(t, 15, testutil.Stock(t, db, tee.ID))
	assert.Equal(t, 4, testutil.Stock(t, db, tote.ID))

	var movement inventory.StockMovement
	require.NoError(t, db.Where("variant_id = ? AND reference_type = ?", tee.ID, inventory.ReferencePurchase).First(&movement).Error)
	assert.Equal(t, bill.ID, movement.ReferenceID)
	assert.Equal(t, inventory.MovementTypeInward, movement.MovementType)
	assert.Equal(t, 10, movement.Delta)

	// Last price wins
	var variant inventory.ProductVariant
	require.NoError(t, db.First(&variant, tote.ID).Error)
	assert.True(t, variant.CostPrice.Equal(decimal.RequireFromString("80.50")))

	v, err := svc.GetVendor(ctx, vendor.ID)
	require.NoError(t, err)
	assert.True(t, v.Balance.Equal(decimal.RequireFromString("1522")))
}

func TestCreatePurchaseReportsEveryViolation(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)

	inactive := testutil.Vendor(t, db)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)
	variant := testutil.Variant(t, db, 0)

	_, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
		VendorID: inactive.ID,
		Items: []purchase.PurchaseItemRequest{
			{VariantID: 999, Quantity: 1, UnitCost: decimal.NewFromInt(1)},
			{VariantID: variant.ID, Quantity: 0, UnitCost: decimal.NewFromInt(-5)},
		},
	}, testutil.Actor)
	require.Error(t, err)

	appErr := apperror.As(err)
	require.Equal(t, apperror.KindValidation, appErr.Kind)

	fields := map[string]string{}
	for _, f := range appErr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Contains(t, fields, "vendor_id")
	assert.Contains(t, fields, "items[0].variant_id")
	assert.Contains(t, fields, "items[1].quantity")
	assert.Contains(t, fields, "items[1].unit_cost")

	// Nothing was written
	var count int64
	require.NoError(t, db.Model(&purchase.Purchase{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 0, testutil.Stock(t, db, variant.ID))
}

func TestCreatePurchaseRequiresItems(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)
	vendor := testutil.Vendor(t, db)

	_, err := svc.CreatePurchase(context.Background(), &purchase.CreatePurchaseRequest{VendorID: vendor.ID}, testutil.Actor)
	appErr := apperror.As(err)
	require.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, "items", appErr.Fields[0].Field)
}

func TestCreatePurchasePartialPolicyKeepsBill(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)

	vendor := testutil.Vendor(t, db)
	good := testutil.Variant(t, db, 0)
	retired := testutil.Variant(t, db, 2)
	deactivate(t, db, retired.ID)

	result, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
		VendorID: vendor.ID,
		Items: []purchase.PurchaseItemRequest{
			{VariantID: good.ID, Quantity: 6, UnitCost: decimal.NewFromInt(10)},
			{VariantID: retired.ID, Quantity: 3, UnitCost: decimal.NewFromInt(10)},
		},
	}, testutil.Actor)
	require.NoError(t, err)

	assert.Equal(t, purchase.StockStatusPartial, result.Purchase.StockStatus)
	assert.Equal(t, 1, result.Stock.Succeeded)
	assert.Equal(t, 1, result.Stock.Failed)
	assert.Equal(t, []uint{retired.ID}, result.Stock.FailedIDs())

	for _, unit := range result.Stock.Units {
		if unit.ID == retired.ID {
			assert.Equal(t, batch.StatusFailed, unit.Status)
			assert.Equal(t, "VARIANT_INACTIVE", unit.Error.Code)
			assert.Nil(t, unit.Value)
		} else {
			assert.Equal(t, batch.StatusOK, unit.Status)
			assert.Equal(t, 6, unit.Value.StockAfter)
		}
	}

	assert.Equal(t, 6, testutil.Stock(t, db, good.ID))
	assert.Equal(t, 2, testutil.Stock(t, db, retired.ID))

	stored, err := svc.GetPurchase(ctx, result.Purchase.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	for _, item := range stored.Items {
		if item.VariantID == retired.ID {
			assert.False(t, item.StockApplied)
			assert.NotEmpty(t, item.StockError)
		} else {
			assert.True(t, item.StockApplied)
			assert.Empty(t, item.StockError)
		}
	}

	// The bill stands at full value
	v, err := svc.GetVendor(ctx, vendor.ID)
	require.NoError(t, err)
	assert.True(t, v.Balance.Equal(decimal.NewFromInt(90)))
}

func TestCreatePurchaseAtomicPolicyRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyAtomic)

	vendor := testutil.Vendor(t, db)
	good := testutil.Variant(t, db, 0)
	retired := testutil.Variant(t, db, 0)
	deactivate(t, db, retired.ID)

	_, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
		VendorID: vendor.ID,
		Items: []purchase.PurchaseItemRequest{
			{VariantID: good.ID, Quantity: 6, UnitCost: decimal.NewFromInt(10)},
			{VariantID: retired.ID, Quantity: 3, UnitCost: decimal.NewFromInt(10)},
		},
	}, testutil.Actor)
	require.Error(t, err)
	assert.Equal(t, "VARIANT_INACTIVE", apperror.As(err).Code)

	assert.Equal(t, 0, testutil.Stock(t, db, good.ID))

	var count int64
	require.NoError(t, db.Model(&purchase.Purchase{}).Count(&count).Error)
	assert.Zero(t, count)

	v, err := svc.GetVendor(ctx, vendor.ID)
	require.NoError(t, err)
	assert.True(t, v.Balance.IsZero())
}

func TestSupplyNumbersAreSequentialPerYear(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)

	vendor := testutil.Vendor(t, db)
	variant := testutil.Variant(t, db, 0)
	year := time.Now().UTC().Year()

	// Another year's numbering does not interfere
	require.NoError(t, db.Create(&purchase.Purchase{
		SupplyNumber: fmt.Sprintf("SUP-%d-0042", year-1),
		VendorID:     vendor.ID,
		CreatedBy:    testutil.Actor,
	}).Error)

	var numbers []string
	for i := 0; i < 3; i++ {
		result, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
			VendorID: vendor.ID,
			Items:    []purchase.PurchaseItemRequest{{VariantID: variant.ID, Quantity: 1, UnitCost: decimal.NewFromInt(1)}},
		}, testutil.Actor)
		require.NoError(t, err)
		numbers = append(numbers, result.Purchase.SupplyNumber)
	}

	prefix := fmt.Sprintf("SUP-%d-", year)
	assert.Equal(t, []string{prefix + "0001", prefix + "0002", prefix + "0003"}, numbers)
	for _, n := range numbers {
		assert.True(t, strings.HasPrefix(n, prefix))
	}
}

func TestRecordPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)

	vendor := testutil.Vendor(t, db)
	variant := testutil.Variant(t, db, 0)

	result, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
		VendorID: vendor.ID,
		Items:    []purchase.PurchaseItemRequest{{VariantID: variant.ID, Quantity: 10, UnitCost: decimal.NewFromInt(100)}},
	}, testutil.Actor)
	require.NoError(t, err)
	billID := result.Purchase.ID

	bill, err := svc.RecordPayment(ctx, billID, &purchase.RecordPaymentRequest{Amount: decimal.NewFromInt(400), Method: "cash"}, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, purchase.PurchaseStatusPartial, bill.Status)
	assert.True(t, bill.Outstanding().Equal(decimal.NewFromInt(600)))
	assert.Len(t, bill.Payments, 1)

	_, err = svc.RecordPayment(ctx, billID, &purchase.RecordPaymentRequest{Amount: decimal.NewFromInt(601)}, testutil.Actor)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.RecordPayment(ctx, billID, &purchase.RecordPaymentRequest{Amount: decimal.Zero}, testutil.Actor)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.RecordPayment(ctx, billID, &purchase.RecordPaymentRequest{Amount: decimal.NewFromInt(5), Method: "barter"}, testutil.Actor)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	bill, err = svc.RecordPayment(ctx, billID, &purchase.RecordPaymentRequest{Amount: decimal.NewFromInt(600), Method: "bank_transfer"}, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, purchase.PurchaseStatusPaid, bill.Status)
	assert.True(t, bill.IsPaid())

	_, err = svc.RecordPayment(ctx, billID, &purchase.RecordPaymentRequest{Amount: decimal.NewFromInt(1)}, testutil.Actor)
	assert.Equal(t, "PURCHASE_ALREADY_PAID", apperror.As(err).Code)

	v, err := svc.GetVendor(ctx, vendor.ID)
	require.NoError(t, err)
	assert.True(t, v.Balance.IsZero())

	_, err = svc.RecordPayment(ctx, 999, &purchase.RecordPaymentRequest{Amount: decimal.NewFromInt(1)}, testutil.Actor)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestListPurchasesFilters(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newService(db, config.PurchasePolicyPartial)

	first := testutil.Vendor(t, db)
	second := testutil.Vendor(t, db)
	variant := testutil.Variant(t, db, 0)

	for _, vendorID := range []uint{first.ID, first.ID, second.ID} {
		_, err := svc.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
			VendorID: vendorID,
			Items:    []purchase.PurchaseItemRequest{{VariantID: variant.ID, Quantity: 1, UnitCost: decimal.NewFromInt(1)}},
		}, testutil.Actor)
		require.NoError(t, err)
	}

	bills, total, err := svc.ListPurchases(ctx, &purchase.ListPurchasesRequest{VendorID: first.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, bills, 2)
	assert.Greater(t, bills[0].ID, bills[1].ID)
	require.NotNil(t, bills[0].Vendor)
	assert.Equal(t, first.Name, bills[0].Vendor.Name)
}
