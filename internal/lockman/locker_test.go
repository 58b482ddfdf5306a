package lockman

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lstvault/internal/token"
)

var (
	underlyingMint = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	faucet         = common.HexToAddress("0x0000000000000000000000000000000000000001")
	vaultIdentity  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	user           = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

type lockerEnv struct {
	bank   *token.Bank
	locker *Locker
	now    time.Time
	escrow common.Address
	source common.Address
	dest   common.Address
}

func newLockerEnv(t *testing.T, cooldown time.Duration) *lockerEnv {
	t.Helper()

	bank := token.NewBank(100)
	if err := bank.CreateMint(underlyingMint, faucet); err != nil {
		t.Fatalf("create mint: %v", err)
	}

	env := &lockerEnv{
		bank:   bank,
		locker: NewLocker(bank, underlyingMint, cooldown),
		now:    time.Unix(1_700_000_000, 0),
	}
	env.locker.SetClock(func() time.Time { return env.now })

	source, err := bank.EnsureAccount(underlyingMint, vaultIdentity)
	if err != nil {
		t.Fatalf("ensure source account: %v", err)
	}
	if err := bank.MintTo(token.AuthorityFor(faucet), underlyingMint, source, 1_000_000); err != nil {
		t.Fatalf("fund source: %v", err)
	}
	env.source = source

	dest, err := bank.EnsureAccount(underlyingMint, user)
	if err != nil {
		t.Fatalf("ensure destination account: %v", err)
	}
	env.dest = dest

	escrow, err := env.locker.OpenEscrow(context.Background(), vaultIdentity)
	if err != nil {
		t.Fatalf("open escrow: %v", err)
	}
	env.escrow = escrow
	return env
}

func (e *lockerEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *lockerEnv) lock(t *testing.T, amount uint64) {
	t.Helper()
	err := e.locker.IncreaseLockedAmount(context.Background(), e.escrow, token.AuthorityFor(vaultIdentity), e.source, amount)
	if err != nil {
		t.Fatalf("increase locked amount: %v", err)
	}
}

func TestOpenEscrowIdempotent(t *testing.T) {
	env := newLockerEnv(t, time.Hour)

	again, err := env.locker.OpenEscrow(context.Background(), vaultIdentity)
	if err != nil {
		t.Fatalf("open escrow twice: %v", err)
	}
	if again != env.escrow {
		t.Fatalf("escrow id changed across open calls: %s != %s", again.Hex(), env.escrow.Hex())
	}
}

func TestIncreaseLockedAmount(t *testing.T) {
	env := newLockerEnv(t, time.Hour)
	env.lock(t, 600)

	locked, err := env.locker.LockedAmount(env.escrow)
	if err != nil {
		t.Fatalf("locked amount: %v", err)
	}
	if locked != 600 {
		t.Fatalf("locked amount: got %d, want 600", locked)
	}
	if balance, _ := env.bank.Balance(env.source); balance != 999_400 {
		t.Fatalf("source balance: got %d, want 999400", balance)
	}
}

func TestIncreaseLockedAmountWrongAuthority(t *testing.T) {
	env := newLockerEnv(t, time.Hour)

	err := env.locker.IncreaseLockedAmount(context.Background(), env.escrow, token.AuthorityFor(user), env.source, 10)
	if !errors.Is(err, token.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPartialUnlockCooldown(t *testing.T) {
	env := newLockerEnv(t, time.Hour)
	env.lock(t, 1_000)

	partial, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 400, "test unlock")
	if err != nil {
		t.Fatalf("open partial unlock: %v", err)
	}
	if locked, _ := env.locker.LockedAmount(env.escrow); locked != 600 {
		t.Fatalf("open must carve amount out of locked total, got %d", locked)
	}

	if _, err := env.locker.WithdrawPartialUnlock(context.Background(), env.escrow, partial, env.dest); !errors.Is(err, ErrUnlockNotMatured) {
		t.Fatalf("expected ErrUnlockNotMatured before cooldown, got %v", err)
	}

	env.advance(time.Hour)
	paid, err := env.locker.WithdrawPartialUnlock(context.Background(), env.escrow, partial, env.dest)
	if err != nil {
		t.Fatalf("withdraw after cooldown: %v", err)
	}
	if paid != 400 {
		t.Fatalf("paid: got %d, want 400", paid)
	}
	if balance, _ := env.bank.Balance(env.dest); balance != 400 {
		t.Fatalf("destination balance: got %d, want 400", balance)
	}

	if _, err := env.locker.WithdrawPartialUnlock(context.Background(), env.escrow, partial, env.dest); !errors.Is(err, ErrPartialUnlockNotFound) {
		t.Fatalf("withdrawn unlock must be retired, got %v", err)
	}
}

func TestMergePartialUnlock(t *testing.T) {
	env := newLockerEnv(t, time.Hour)
	env.lock(t, 1_000)

	partial, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 250, "test unlock")
	if err != nil {
		t.Fatalf("open partial unlock: %v", err)
	}
	if err := env.locker.MergePartialUnlock(context.Background(), env.escrow, partial); err != nil {
		t.Fatalf("merge partial unlock: %v", err)
	}

	if locked, _ := env.locker.LockedAmount(env.escrow); locked != 1_000 {
		t.Fatalf("merge must restore the locked total, got %d", locked)
	}
	if err := env.locker.MergePartialUnlock(context.Background(), env.escrow, partial); !errors.Is(err, ErrPartialUnlockNotFound) {
		t.Fatalf("merged unlock must be retired, got %v", err)
	}
}

func TestOpenPartialUnlockBounds(t *testing.T) {
	env := newLockerEnv(t, time.Hour)
	env.lock(t, 100)

	if _, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 101, "too much"); !errors.Is(err, ErrInsufficientLocked) {
		t.Fatalf("expected ErrInsufficientLocked, got %v", err)
	}

	if err := env.locker.ToggleMaxLock(context.Background(), env.escrow, true); err != nil {
		t.Fatalf("toggle max lock: %v", err)
	}
	if _, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 10, "max locked"); !errors.Is(err, ErrMaxLockEnabled) {
		t.Fatalf("expected ErrMaxLockEnabled, got %v", err)
	}

	if err := env.locker.ToggleMaxLock(context.Background(), env.escrow, false); err != nil {
		t.Fatalf("toggle max lock off: %v", err)
	}
	if _, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 10, "unlocked again"); err != nil {
		t.Fatalf("open after toggle off: %v", err)
	}
}

func TestSnapshotRestoreKeepsDeadlines(t *testing.T) {
	env := newLockerEnv(t, time.Hour)
	env.lock(t, 1_000)

	partial, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 400, "test unlock")
	if err != nil {
		t.Fatalf("open partial unlock: %v", err)
	}

	restored := RestoreLocker(env.bank, env.locker.Snapshot(), time.Hour)
	restored.SetClock(func() time.Time { return env.now })

	if locked, _ := restored.LockedAmount(env.escrow); locked != 600 {
		t.Fatalf("restored locked amount: got %d, want 600", locked)
	}
	if _, err := restored.WithdrawPartialUnlock(context.Background(), env.escrow, partial, env.dest); !errors.Is(err, ErrUnlockNotMatured) {
		t.Fatalf("restore must not reset the cooldown, got %v", err)
	}

	restored.SetClock(func() time.Time { return env.now.Add(time.Hour) })
	paid, err := restored.WithdrawPartialUnlock(context.Background(), env.escrow, partial, env.dest)
	if err != nil {
		t.Fatalf("withdraw after restore: %v", err)
	}
	if paid != 400 {
		t.Fatalf("paid after restore: got %d, want 400", paid)
	}

	// The restored escrow keeps its unlock sequence, so new requests
	// get fresh identities.
	next, err := restored.OpenPartialUnlock(context.Background(), env.escrow, 100, "test unlock")
	if err != nil {
		t.Fatalf("open after restore: %v", err)
	}
	if next == partial {
		t.Fatalf("unlock identity reused after restore")
	}
}

func TestPartialUnlockEscrowMismatch(t *testing.T) {
	env := newLockerEnv(t, time.Hour)
	env.lock(t, 100)

	other, err := env.locker.OpenEscrow(context.Background(), user)
	if err != nil {
		t.Fatalf("open second escrow: %v", err)
	}
	partial, err := env.locker.OpenPartialUnlock(context.Background(), env.escrow, 50, "test unlock")
	if err != nil {
		t.Fatalf("open partial unlock: %v", err)
	}

	if err := env.locker.MergePartialUnlock(context.Background(), other, partial); !errors.Is(err, ErrPartialUnlockMismatch) {
		t.Fatalf("expected ErrPartialUnlockMismatch, got %v", err)
	}
}
