package writebatch

import "errors"

var (
	// ErrExecutorClosed is returned when operations are attempted on a closed executor
	ErrExecutorClosed = errors.New("batch executor is closed")

	// ErrNotEnlistable is returned by sessions asked to enlist a statement of a foreign driver
	ErrNotEnlistable = errors.New("statement cannot be enlisted in this session")
)
