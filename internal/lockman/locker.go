package lockman

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lstvault/internal/token"
)

var (
	lockerSeed       = []byte("locker")
	escrowSeed       = []byte("escrow")
	escrowTokensSeed = []byte("escrow-tokens")
	partialSeed      = []byte("part-unlock")
)

// Escrow is one owner's locked position.
type Escrow struct {
	ID            common.Address `json:"id"`
	Owner         common.Address `json:"owner"`
	TokensAccount common.Address `json:"tokens_account"`
	LockedAmount  uint64         `json:"locked_amount"`
	MaxLock       bool           `json:"max_lock"`
	UnlockSeq     uint64         `json:"unlock_seq"`
}

// PartialUnlock is a timed request to release part of a locked
// position. The amount is carved out of the escrow's locked total when
// the request opens and returns to it on merge.
type PartialUnlock struct {
	ID       common.Address `json:"id"`
	Escrow   common.Address `json:"escrow"`
	Amount   uint64         `json:"amount"`
	Memo     string         `json:"memo"`
	UnlockAt time.Time      `json:"unlock_at"`
}

// Locker is the reference LockManager. It custodies underlying tokens
// in the bank under its own identity and gates withdrawals behind a
// fixed cooldown measured on an injectable clock.
type Locker struct {
	mu       sync.Mutex
	bank     *token.Bank
	mint     common.Address
	self     common.Address
	cooldown time.Duration
	now      func() time.Time
	escrows  map[common.Address]*Escrow
	partials map[common.Address]*PartialUnlock
}

// NewLocker builds a Locker for one underlying mint.
func NewLocker(bank *token.Bank, underlyingMint common.Address, cooldown time.Duration) *Locker {
	return &Locker{
		bank:     bank,
		mint:     underlyingMint,
		self:     common.BytesToAddress(crypto.Keccak256(lockerSeed, underlyingMint.Bytes())),
		cooldown: cooldown,
		now:      time.Now,
		escrows:  make(map[common.Address]*Escrow),
		partials: make(map[common.Address]*PartialUnlock),
	}
}

// SetClock overrides the cooldown clock. Intended for tests.
func (l *Locker) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// OpenEscrow creates the custody record for an owner, or returns the
// existing one. Idempotent per owner.
func (l *Locker) OpenEscrow(ctx context.Context, owner common.Address) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := common.BytesToAddress(crypto.Keccak256(escrowSeed, l.self.Bytes(), owner.Bytes()))
	if _, ok := l.escrows[id]; ok {
		return id, nil
	}

	tokensAccount := common.BytesToAddress(crypto.Keccak256(escrowTokensSeed, id.Bytes()))
	if err := l.bank.CreateAccount(tokensAccount, l.mint, l.self); err != nil {
		return common.Address{}, fmt.Errorf("create escrow tokens account: %w", err)
	}
	l.escrows[id] = &Escrow{ID: id, Owner: owner, TokensAccount: tokensAccount}
	return id, nil
}

// IncreaseLockedAmount deposits underlying into the locked position.
func (l *Locker) IncreaseLockedAmount(ctx context.Context, escrow common.Address, auth token.Authority, source common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, ok := l.escrows[escrow]
	if !ok {
		return ErrEscrowNotFound
	}
	if esc.LockedAmount+amount < esc.LockedAmount {
		return token.ErrBalanceOverflow
	}
	if err := l.bank.Transfer(auth, source, esc.TokensAccount, amount); err != nil {
		return fmt.Errorf("move tokens into escrow: %w", err)
	}
	esc.LockedAmount += amount
	return nil
}

// ToggleMaxLock flips the escrow's max-lock policy.
func (l *Locker) ToggleMaxLock(ctx context.Context, escrow common.Address, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, ok := l.escrows[escrow]
	if !ok {
		return ErrEscrowNotFound
	}
	esc.MaxLock = enabled
	return nil
}

// OpenPartialUnlock carves amount out of the locked position and
// starts its cooldown.
func (l *Locker) OpenPartialUnlock(ctx context.Context, escrow common.Address, amount uint64, memo string) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, ok := l.escrows[escrow]
	if !ok {
		return common.Address{}, ErrEscrowNotFound
	}
	if esc.MaxLock {
		return common.Address{}, ErrMaxLockEnabled
	}
	if amount > esc.LockedAmount {
		return common.Address{}, ErrInsufficientLocked
	}

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], esc.UnlockSeq)
	id := common.BytesToAddress(crypto.Keccak256(partialSeed, escrow.Bytes(), seq[:]))
	esc.UnlockSeq++

	esc.LockedAmount -= amount
	l.partials[id] = &PartialUnlock{
		ID:       id,
		Escrow:   escrow,
		Amount:   amount,
		Memo:     memo,
		UnlockAt: l.now().Add(l.cooldown),
	}
	return id, nil
}

// MergePartialUnlock cancels a pending unlock, folding its amount back
// into the locked position.
func (l *Locker) MergePartialUnlock(ctx context.Context, escrow, partialUnlock common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, partial, err := l.lookupLocked(escrow, partialUnlock)
	if err != nil {
		return err
	}
	if esc.LockedAmount+partial.Amount < esc.LockedAmount {
		return token.ErrBalanceOverflow
	}
	esc.LockedAmount += partial.Amount
	delete(l.partials, partialUnlock)
	return nil
}

// WithdrawPartialUnlock pays a matured unlock to the destination
// account and retires the request.
func (l *Locker) WithdrawPartialUnlock(ctx context.Context, escrow, partialUnlock common.Address, destination common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, partial, err := l.lookupLocked(escrow, partialUnlock)
	if err != nil {
		return 0, err
	}
	if l.now().Before(partial.UnlockAt) {
		return 0, ErrUnlockNotMatured
	}
	if err := l.bank.Transfer(token.AuthorityFor(l.self), esc.TokensAccount, destination, partial.Amount); err != nil {
		return 0, fmt.Errorf("pay out unlock: %w", err)
	}
	delete(l.partials, partialUnlock)
	return partial.Amount, nil
}

// LockedAmount reports the escrow's locked total, excluding amounts in
// pending partial unlocks.
func (l *Locker) LockedAmount(escrow common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, ok := l.escrows[escrow]
	if !ok {
		return 0, ErrEscrowNotFound
	}
	return esc.LockedAmount, nil
}

// LockerState is the serializable snapshot of a Locker.
type LockerState struct {
	Mint     common.Address  `json:"mint"`
	Escrows  []Escrow        `json:"escrows"`
	Partials []PartialUnlock `json:"partial_unlocks"`
}

// Snapshot captures every escrow and pending partial unlock, sorted
// for stable serialization.
func (l *Locker) Snapshot() LockerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := LockerState{Mint: l.mint}
	for _, esc := range l.escrows {
		state.Escrows = append(state.Escrows, *esc)
	}
	for _, partial := range l.partials {
		state.Partials = append(state.Partials, *partial)
	}
	sort.Slice(state.Escrows, func(i, j int) bool {
		return state.Escrows[i].ID.Hex() < state.Escrows[j].ID.Hex()
	})
	sort.Slice(state.Partials, func(i, j int) bool {
		return state.Partials[i].ID.Hex() < state.Partials[j].ID.Hex()
	})
	return state
}

// RestoreLocker rebuilds a Locker from a snapshot against the bank
// holding its custody accounts. Unlock deadlines are absolute times,
// so pending cooldowns keep running across a restore.
func RestoreLocker(bank *token.Bank, state LockerState, cooldown time.Duration) *Locker {
	l := NewLocker(bank, state.Mint, cooldown)
	for _, esc := range state.Escrows {
		escrow := esc
		l.escrows[escrow.ID] = &escrow
	}
	for _, partial := range state.Partials {
		p := partial
		l.partials[p.ID] = &p
	}
	return l
}

func (l *Locker) lookupLocked(escrow, partialUnlock common.Address) (*Escrow, *PartialUnlock, error) {
	esc, ok := l.escrows[escrow]
	if !ok {
		return nil, nil, ErrEscrowNotFound
	}
	partial, ok := l.partials[partialUnlock]
	if !ok {
		return nil, nil, ErrPartialUnlockNotFound
	}
	if partial.Escrow != escrow {
		return nil, nil, ErrPartialUnlockMismatch
	}
	return esc, partial, nil
}
