package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
)

func TestResultTalliesUnits(t *testing.T) {
	var r Result[string]
	ok := "packed"

	r.Record(1, &ok, nil)
	r.Record(2, nil, apperror.InsufficientStock(5, 0, 1))
	r.Record(3, &ok, nil)

	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, []uint{2}, r.FailedIDs())
	assert.Equal(t, apperror.KindInsufficientStock, r.Units[1].Error.Kind)
	assert.Nil(t, r.Units[1].Value)
	assert.Equal(t, StatusOK, r.Units[2].Status)
}
