package vault

import "errors"

// Error kinds surfaced by the accounting core. Callers match them with
// errors.Is to decide whether a failure is retriable.
var (
	// ErrArithmeticOverflow means a checked add/sub/mul left the uint64 domain.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidAmount means a requested amount is zero, or an unstake
	// delta exceeds the recorded totals. Never silently clamped.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidFeeRate means the fee rate is outside [0, 10000) basis points.
	ErrInvalidFeeRate = errors.New("invalid fee rate")
)
