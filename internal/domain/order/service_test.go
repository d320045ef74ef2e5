package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/domain/order"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
	"github.com/your-org/ops-ledger/internal/pkg/batch"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"github.com/your-org/ops-ledger/internal/testutil"
	"gorm.io/gorm"
)

func newPacking(db *gorm.DB) *order.PackingService {
	return order.NewPackingService(db, testutil.NewLedger(db), lock.NewLocal(), logger.Discard())
}

func TestPackOrderDeductsEveryLine(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newPacking(db)

	tee := testutil.Variant(t, db, 10)
	tote := testutil.Variant(t, db, 4)
	o := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD,
		testutil.Line{Variant: tee, Quantity: 3, Price: 900},
		testutil.Line{Variant: tote, Quantity: 1, Price: 400},
	)

	packed, err := svc.PackOrder(ctx, o.ID, testutil.Actor)
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusPacked, packed.Status)
	assert.NotNil(t, packed.PackedAt)

	assert.Equal(t, 7, testutil.Stock(t, db, tee.ID))
	assert.Equal(t, 3, testutil.Stock(t, db, tote.ID))

	var movements []inventory.StockMovement
	require.NoError(t, db.Where("reference_type = ? AND reference_id = ?", inventory.ReferenceOrder, o.ID).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, inventory.MovementTypeOutward, m.MovementType)
		assert.Equal(t, testutil.Actor, m.CreatedBy)
	}

	require.Len(t, packed.StatusHistory, 1)
	assert.Equal(t, order.OrderStatusConfirmed, packed.StatusHistory[0].FromStatus)
	assert.Equal(t, order.OrderStatusPacked, packed.StatusHistory[0].Status)
}

func TestPackOrderShortageRollsBackWholeOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newPacking(db)

	plenty := testutil.Variant(t, db, 10)
	scarce := testutil.Variant(t, db, 1)
	o := testutil.Order(t, db, order.OrderStatusReady, order.PaymentMethodCOD,
		testutil.Line{Variant: plenty, Quantity: 2, Price: 100},
		testutil.Line{Variant: scarce, Quantity: 2, Price: 100},
	)

	_, err := svc.PackOrder(ctx, o.ID, testutil.Actor)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindInsufficientStock))

	assert.Equal(t, 10, testutil.Stock(t, db, plenty.ID))
	assert.Equal(t, 1, testutil.Stock(t, db, scarce.ID))
	assert.Equal(t, order.OrderStatusReady, testutil.ReloadOrder(t, db, o.ID).Status)
}

func TestPackOrderRejectsIneligibleStatus(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newPacking(db)
	variant := testutil.Variant(t, db, 10)

	for _, status := range []order.OrderStatus{order.OrderStatusPending, order.OrderStatusCancelled, order.OrderStatusDelivered} {
		o := testutil.Order(t, db, status, order.PaymentMethodCOD, testutil.Line{Variant: variant, Quantity: 1, Price: 100})

		_, err := svc.PackOrder(ctx, o.ID, testutil.Actor)
		assert.True(t, apperror.Is(err, apperror.KindInvalidTransition), string(status))
	}
	assert.Equal(t, 10, testutil.Stock(t, db, variant.ID))

	_, err := svc.PackOrder(ctx, 999, testutil.Actor)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestPackOrderTwiceDeductsOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newPacking(db)

	variant := testutil.Variant(t, db, 10)
	o := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD, testutil.Line{Variant: variant, Quantity: 4, Price: 100})

	_, err := svc.PackOrder(ctx, o.ID, testutil.Actor)
	require.NoError(t, err)

	_, err = svc.PackOrder(ctx, o.ID, testutil.Actor)
	require.Error(t, err)
	appErr := apperror.As(err)
	assert.Equal(t, apperror.KindInvalidTransition, appErr.Kind)
	assert.Equal(t, "INVALID_ORDER_TRANSITION", appErr.Code)

	assert.Equal(t, 6, testutil.Stock(t, db, variant.ID))
}

func TestPackOrderWithoutItems(t *testing.T) {
	db := testutil.NewDB(t)
	o := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD)

	_, err := newPacking(db).PackOrder(context.Background(), o.ID, testutil.Actor)
	assert.Equal(t, "ORDER_HAS_NO_ITEMS", apperror.As(err).Code)
}

func TestConcurrentPackSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newPacking(db)

	variant := testutil.Variant(t, db, 10)
	o := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD, testutil.Line{Variant: variant, Quantity: 3, Price: 100})

	var (
		wg   sync.WaitGroup
		errs = make([]error, 5)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PackOrder(ctx, o.ID, testutil.Actor)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, testutil.Stock(t, db, variant.ID))
}

func TestPackOrdersReportsEachOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := newPacking(db)

	variant := testutil.Variant(t, db, 5)
	fits := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD, testutil.Line{Variant: variant, Quantity: 4, Price: 100})
	short := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD, testutil.Line{Variant: variant, Quantity: 4, Price: 100})

	result := svc.PackOrders(ctx, []uint{fits.ID, short.ID, 999}, testutil.Actor)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []uint{short.ID, 999}, result.FailedIDs())

	require.Len(t, result.Units, 3)
	assert.Equal(t, batch.StatusOK, result.Units[0].Status)
	assert.Equal(t, order.OrderStatusPacked, result.Units[0].Value.Status)
	assert.Equal(t, apperror.KindInsufficientStock, result.Units[1].Error.Kind)
	assert.Equal(t, apperror.KindNotFound, result.Units[2].Error.Kind)

	assert.Equal(t, 1, testutil.Stock(t, db, variant.ID))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to order.OrderStatus
		want     bool
	}{
		{order.OrderStatusConfirmed, order.OrderStatusPacked, true},
		{order.OrderStatusReady, order.OrderStatusPacked, true},
		{order.OrderStatusPacked, order.OrderStatusPacked, false},
		{order.OrderStatusPacked, order.OrderStatusOutForDelivery, true},
		{order.OrderStatusOutForDelivery, order.OrderStatusDelivered, true},
		{order.OrderStatusDelivered, order.OrderStatusPacked, false},
		{order.OrderStatusReturnProcessed, order.OrderStatusPartiallyReturned, false},
		{order.OrderStatusCancelled, order.OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
