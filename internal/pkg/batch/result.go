// internal/pkg/batch/result.go
package batch

import "github.com/your-org/ops-ledger/internal/pkg/apperror"

// Status is the outcome of one unit in a bulk operation
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// UnitResult is either a value or an error for one unit, never both
type UnitResult[T any] struct {
	ID     uint            `json:"id"`
	Status Status          `json:"status"`
	Value  *T              `json:"value,omitempty"`
	Error  *apperror.Error `json:"error,omitempty"`
}

// Result tallies a bulk operation unit by unit
type Result[T any] struct {
	Units     []UnitResult[T] `json:"units"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// Record appends the outcome for one unit
func (r *Result[T]) Record(id uint, value *T, err error) {
	if err != nil {
		r.Units = append(r.Units, UnitResult[T]{ID: id, Status: StatusFailed, Error: apperror.As(err)})
		r.Failed++
		return
	}
	r.Units = append(r.Units, UnitResult[T]{ID: id, Status: StatusOK, Value: value})
	r.Succeeded++
}

// FailedIDs lists the units that should be retried individually
func (r *Result[T]) FailedIDs() []uint {
	ids := make([]uint, 0, r.Failed)
	for _, u := range r.Units {
		if u.Status == StatusFailed {
			ids = append(ids, u.ID)
		}
	}
	return ids
}
