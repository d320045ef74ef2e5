package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/domain/inventory"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"github.com/your-org/ops-ledger/internal/testutil"
)

type fakeAuditor struct {
	drifted []inventory.Reconciliation
	err     error
	repair  []bool
}

func (f *fakeAuditor) AuditAll(_ context.Context, repair bool) ([]inventory.Reconciliation, error) {
	f.repair = append(f.repair, repair)
	return f.drifted, f.err
}

func TestRunOnceRecordsDrift(t *testing.T) {
	auditor := &fakeAuditor{drifted: []inventory.Reconciliation{
		{VariantID: 1, SKU: "A", CachedStock: 5, LedgerStock: 3, Drift: 2, Repaired: true},
		{VariantID: 2, SKU: "B", CachedStock: 0, LedgerStock: 1, Drift: -1, Repaired: true},
	}}
	audit := NewLedgerAudit(auditor, "0 30 2 * * *", true, logger.Discard())

	last, _ := audit.LastRun()
	assert.True(t, last.IsZero())

	drifted, err := audit.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, drifted, 2)
	assert.Equal(t, []bool{true}, auditor.repair)

	last, count := audit.LastRun()
	assert.False(t, last.IsZero())
	assert.Equal(t, 2, count)
}

func TestRunOnceKeepsPreviousRunOnError(t *testing.T) {
	auditor := &fakeAuditor{}
	audit := NewLedgerAudit(auditor, "0 30 2 * * *", false, logger.Discard())

	_, err := audit.RunOnce(context.Background())
	require.NoError(t, err)
	first, _ := audit.LastRun()

	auditor.err = errors.New("database unavailable")
	_, err = audit.RunOnce(context.Background())
	require.Error(t, err)

	after, count := audit.LastRun()
	assert.Equal(t, first, after)
	assert.Zero(t, count)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	audit := NewLedgerAudit(&fakeAuditor{}, "every night", false, logger.Discard())
	assert.Error(t, audit.Start())
}

func TestStartAndStop(t *testing.T) {
	audit := NewLedgerAudit(&fakeAuditor{}, "0 30 2 * * *", false, logger.Discard())
	require.NoError(t, audit.Start())
	audit.Stop()
}

func TestAuditRepairsRealLedger(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := testutil.NewLedger(db)

	clean := testutil.Variant(t, db, 8)
	dirty := testutil.Variant(t, db, 12)
	require.NoError(t, db.Model(&inventory.ProductVariant{}).Where("id = ?", dirty.ID).Update("current_stock", 20).Error)

	audit := NewLedgerAudit(ledger, "0 30 2 * * *", true, logger.Discard())
	drifted, err := audit.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, drifted, 1)
	assert.Equal(t, dirty.ID, drifted[0].VariantID)
	assert.Equal(t, 8, drifted[0].Drift)

	assert.Equal(t, 12, testutil.Stock(t, db, dirty.ID))
	assert.Equal(t, 8, testutil.Stock(t, db, clean.ID))
}
