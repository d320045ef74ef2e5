package returns_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/domain/dispatch"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/domain/purchase"
	"github.com/your-org/ops-ledger/internal/domain/returns"
	"github.com/your-org/ops-ledger/internal/domain/rider"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"github.com/your-org/ops-ledger/internal/testutil"
)

// A variant's whole life: bought, packed, sent out, refused, then returned
// partly good and partly damaged. Each step leaves exactly one ledger row.
func TestStockLifecycleThroughServices(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	ledger := testutil.NewLedger(db)
	locker := lock.NewLocal()
	cfg := testutil.Config()
	cfg.Ledger.PurchasePolicy = config.PurchasePolicyPartial

	purchases := purchase.NewService(db, ledger, locker, cfg, logger.Discard())
	packing := order.NewPackingService(db, ledger, locker, logger.Discard())
	runs := dispatch.NewService(db, ledger, rider.NewService(db, logger.Discard()), locker, logger.Discard())
	receiving := returns.NewService(db, ledger, locker, logger.Discard())

	v := testutil.Variant(t, db, 0)
	vendor := testutil.Vendor(t, db)
	r := testutil.Rider(t, db, 0)

	_, err := purchases.CreatePurchase(ctx, &purchase.CreatePurchaseRequest{
		VendorID: vendor.ID,
		Items:    []purchase.PurchaseItemRequest{{VariantID: v.ID, Quantity: 100, UnitCost: decimal.NewFromInt(500)}},
	}, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, 100, testutil.Stock(t, db, v.ID))

	o := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD,
		testutil.Line{Variant: v, Quantity: 30, Price: 900})
	_, err = packing.PackOrder(ctx, o.ID, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, 70, testutil.Stock(t, db, v.ID))

	m, err := runs.CreateManifest(ctx, &dispatch.CreateManifestRequest{RiderID: r.ID, OrderIDs: []uint{o.ID}}, testutil.Actor)
	require.NoError(t, err)
	_, err = runs.DispatchManifest(ctx, m.ID, testutil.Actor)
	require.NoError(t, err)
	_, err = runs.RecordDeliveryOutcome(ctx, m.ID, o.ID, &dispatch.RecordOutcomeRequest{
		Outcome: dispatch.OutcomeCustomerRefused,
	}, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, 70, testutil.Stock(t, db, v.ID))

	_, err = receiving.ProcessReturn(ctx, o.ID, &returns.ProcessReturnRequest{
		Items: []returns.ReturnItemRequest{{VariantID: v.ID, Quantity: 10, Condition: returns.ConditionGood}},
	}, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, 80, testutil.Stock(t, db, v.ID))

	_, err = receiving.ProcessReturn(ctx, o.ID, &returns.ProcessReturnRequest{
		Items: []returns.ReturnItemRequest{{VariantID: v.ID, Quantity: 5, Condition: returns.ConditionDamaged}},
	}, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, 80, testutil.Stock(t, db, v.ID))
	assert.Equal(t, order.OrderStatusPartiallyReturned, testutil.ReloadOrder(t, db, o.ID).Status)

	movements, total, err := ledger.History(ctx, v.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(4), total)

	// History is newest first
	want := []struct {
		movementType inventory.MovementType
		reference    string
		before       int
		after        int
	}{
		{inventory.MovementTypeDamage, inventory.ReferenceReturn, 80, 80},
		{inventory.MovementTypeInward, inventory.ReferenceReturn, 70, 80},
		{inventory.MovementTypeOutward, inventory.ReferenceOrder, 100, 70},
		{inventory.MovementTypeInward, inventory.ReferencePurchase, 0, 100},
	}
	for i, w := range want {
		assert.Equal(t, w.movementType, movements[i].MovementType, "movement %d", i)
		assert.Equal(t, w.reference, movements[i].ReferenceType, "movement %d", i)
		assert.Equal(t, w.before, movements[i].StockBefore, "movement %d", i)
		assert.Equal(t, w.after, movements[i].StockAfter, "movement %d", i)
	}
	assert.Equal(t, 5, movements[0].Quantity)
	assert.Zero(t, movements[0].Delta)

	drift, err := ledger.Reconcile(ctx, v.ID)
	require.NoError(t, err)
	assert.Zero(t, drift.Drift)
}
