// Package lockman defines the lock-management boundary: the external
// service that custodies locked underlying tokens and meters timed
// partial unlocks. The staking service only depends on the LockManager
// interface; Locker is the in-process reference implementation.
package lockman

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"lstvault/internal/token"
)

var (
	ErrEscrowNotFound        = errors.New("escrow not found")
	ErrPartialUnlockNotFound = errors.New("partial unlock not found")
	ErrPartialUnlockMismatch = errors.New("partial unlock does not belong to escrow")
	ErrUnlockNotMatured      = errors.New("unlock cooldown has not elapsed")
	ErrMaxLockEnabled        = errors.New("escrow is max-locked")
	ErrInsufficientLocked    = errors.New("unlock amount exceeds locked amount")
)

// LockManager is the capability set the staking service consumes. All
// calls are atomic: they either commit completely or return an error
// with no state change.
type LockManager interface {
	// OpenEscrow creates (or returns) the custody record for an owner.
	OpenEscrow(ctx context.Context, owner common.Address) (common.Address, error)

	// IncreaseLockedAmount moves amount of underlying from the source
	// token account into the escrow's locked position. The authority
	// must hold the source account.
	IncreaseLockedAmount(ctx context.Context, escrow common.Address, auth token.Authority, source common.Address, amount uint64) error

	// ToggleMaxLock flips the escrow's max-lock policy. A max-locked
	// escrow refuses new partial unlocks.
	ToggleMaxLock(ctx context.Context, escrow common.Address, enabled bool) error

	// OpenPartialUnlock begins a timed unlock of part of the locked
	// position and returns its reference.
	OpenPartialUnlock(ctx context.Context, escrow common.Address, amount uint64, memo string) (common.Address, error)

	// MergePartialUnlock folds a pending unlock back into the locked
	// position.
	MergePartialUnlock(ctx context.Context, escrow, partialUnlock common.Address) error

	// WithdrawPartialUnlock pays a matured unlock out to the
	// destination token account and returns the amount paid.
	WithdrawPartialUnlock(ctx context.Context, escrow, partialUnlock common.Address, destination common.Address) (uint64, error)
}
