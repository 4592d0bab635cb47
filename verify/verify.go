// Package verify checks affected-row counts reported by the database against
// the counts a caller expected.
//
// Immediate statements are checked exactly. Batched results are aggregates
// whose meaning is driver-defined, so a negative count is accepted as
// "unknown" unless the verifier is configured for exact batch counts.
package verify

import (
	"errors"
	"fmt"
)

// ErrRowCountMismatch matches every RowCountMismatchError via errors.Is
var ErrRowCountMismatch = errors.New("unexpected affected row count")

// RowCountMismatchError reports a write whose affected-row count differs
// from the expected count.
type RowCountMismatchError struct {
	Expected  int64
	Actual    int64
	Batched   bool
	Statement string // empty for batched results
}

func (e *RowCountMismatchError) Error() string {
	if e.Batched {
		return fmt.Sprintf("batch update returned unexpected row count: expected %d, actual %d",
			e.Expected, e.Actual)
	}
	return fmt.Sprintf("unexpected row count: expected %d, actual %d; statement: %s",
		e.Expected, e.Actual, e.Statement)
}

// Is makes errors.Is(err, ErrRowCountMismatch) hold
func (e *RowCountMismatchError) Is(target error) bool {
	return target == ErrRowCountMismatch
}

// Verifier implements row-count verification for the batch executor
type Verifier struct {
	// ExactBatchCounts rejects unknown (negative) batch results. Enable it
	// only for drivers that report exact aggregate counts.
	ExactBatchCounts bool
}

// New returns a verifier
func New(exactBatchCounts bool) *Verifier {
	return &Verifier{ExactBatchCounts: exactBatchCounts}
}

// VerifyImmediate checks the result of a single statement. A negative
// expected count disables the check.
func (v *Verifier) VerifyImmediate(expected, actual int64, stmt string) error {
	if expected < 0 || expected == actual {
		return nil
	}
	return &RowCountMismatchError{
		Expected:  expected,
		Actual:    actual,
		Statement: stmt,
	}
}

// VerifyBatched checks the aggregate result of a batch
func (v *Verifier) VerifyBatched(expected, actual int64) error {
	if actual < 0 && !v.ExactBatchCounts {
		return nil
	}
	if expected == actual {
		return nil
	}
	return &RowCountMismatchError{
		Expected: expected,
		Actual:   actual,
		Batched:  true,
	}
}
