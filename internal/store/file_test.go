package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lstvault/internal/lockman"
	"lstvault/internal/token"
	"lstvault/internal/vault"
)

func testVault() vault.Vault {
	return vault.Vault{
		ID:                    common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Owner:                 common.HexToAddress("0x0000000000000000000000000000000000000002"),
		UnderlyingMint:        common.HexToAddress("0x0000000000000000000000000000000000000003"),
		DerivativeMint:        common.HexToAddress("0x0000000000000000000000000000000000000004"),
		Escrow:                common.HexToAddress("0x0000000000000000000000000000000000000005"),
		TotalDerivativeMinted: 95_000_000,
		TotalUnderlyingStaked: 105_000_000,
		FeeBasisPoints:        250,
	}
}

func testTicket(id byte) vault.UnstakingTicket {
	return vault.UnstakingTicket{
		ID:               common.BytesToAddress([]byte{id}),
		Owner:            common.HexToAddress("0x0000000000000000000000000000000000000006"),
		Vault:            common.HexToAddress("0x0000000000000000000000000000000000000001"),
		PartialUnlock:    common.HexToAddress("0x0000000000000000000000000000000000000007"),
		DerivativeAmount: 1_000_000,
		UnderlyingAmount: 1_100_000,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	v := testVault()
	if err := s.PutVault(ctx, v); err != nil {
		t.Fatalf("put vault: %v", err)
	}
	ticket := testTicket(0xaa)
	if err := s.PutTicket(ctx, ticket); err != nil {
		t.Fatalf("put ticket: %v", err)
	}

	// Records must survive a reopen.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}

	gotVault, ok, err := reopened.GetVault(ctx, v.ID)
	if err != nil || !ok {
		t.Fatalf("get vault after reopen: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotVault, v) {
		t.Fatalf("vault mismatch: %+v != %+v", gotVault, v)
	}

	gotTicket, ok, err := reopened.GetTicket(ctx, ticket.ID)
	if err != nil || !ok {
		t.Fatalf("get ticket after reopen: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotTicket, ticket) {
		t.Fatalf("ticket mismatch: %+v != %+v", gotTicket, ticket)
	}
}

func TestFileStoreDeleteTicket(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if err := s.PutVault(ctx, testVault()); err != nil {
		t.Fatalf("put vault: %v", err)
	}
	ticket := testTicket(0xbb)
	if err := s.PutTicket(ctx, ticket); err != nil {
		t.Fatalf("put ticket: %v", err)
	}
	if err := s.DeleteTicket(ctx, ticket.ID); err != nil {
		t.Fatalf("delete ticket: %v", err)
	}

	if _, ok, _ := s.GetTicket(ctx, ticket.ID); ok {
		t.Fatalf("ticket survived delete")
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	if _, ok, _ := reopened.GetTicket(ctx, ticket.ID); ok {
		t.Fatalf("deleted ticket reappeared after reopen")
	}
}

func TestFileStoreWorldRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, _, ok := s.World(); ok {
		t.Fatalf("fresh state file must have no world snapshot")
	}

	bank := token.BankState{
		AccountDeposit: 100,
		Mints: []token.Mint{{
			ID:        common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			Authority: common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Supply:    1_000,
		}},
		Accounts: []token.Account{{
			ID:      common.HexToAddress("0x00000000000000000000000000000000000000ab"),
			Mint:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			Owner:   common.HexToAddress("0x0000000000000000000000000000000000000002"),
			Balance: 1_000,
		}},
		StorageCredits: map[common.Address]uint64{
			common.HexToAddress("0x0000000000000000000000000000000000000003"): 200,
		},
	}
	locks := lockman.LockerState{
		Mint: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Escrows: []lockman.Escrow{{
			ID:            common.HexToAddress("0x00000000000000000000000000000000000000ee"),
			Owner:         common.HexToAddress("0x0000000000000000000000000000000000000001"),
			TokensAccount: common.HexToAddress("0x00000000000000000000000000000000000000ef"),
			LockedAmount:  600,
			UnlockSeq:     2,
		}},
		Partials: []lockman.PartialUnlock{{
			ID:       common.HexToAddress("0x00000000000000000000000000000000000000f0"),
			Escrow:   common.HexToAddress("0x00000000000000000000000000000000000000ee"),
			Amount:   400,
			Memo:     "state unstake",
			UnlockAt: time.Unix(1_700_003_600, 0).UTC(),
		}},
	}
	if err := s.PutWorld(bank, locks); err != nil {
		t.Fatalf("put world: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	gotBank, gotLocks, ok := reopened.World()
	if !ok {
		t.Fatalf("world snapshot missing after reopen")
	}
	if !reflect.DeepEqual(gotBank, bank) {
		t.Fatalf("bank snapshot mismatch: %+v != %+v", gotBank, bank)
	}
	if !reflect.DeepEqual(gotLocks, locks) {
		t.Fatalf("locker snapshot mismatch: %+v != %+v", gotLocks, locks)
	}
}

func TestTicketsByVault(t *testing.T) {
	ctx := context.Background()

	for name, s := range map[string]Store{
		"memory": NewMemoryStore(),
	} {
		first := testTicket(0x01)
		second := testTicket(0x02)
		other := testTicket(0x03)
		other.Vault = common.HexToAddress("0x00000000000000000000000000000000000000ff")

		for _, ticket := range []vault.UnstakingTicket{first, second, other} {
			if err := s.PutTicket(ctx, ticket); err != nil {
				t.Fatalf("%s: put ticket: %v", name, err)
			}
		}

		tickets, err := s.TicketsByVault(ctx, first.Vault)
		if err != nil {
			t.Fatalf("%s: tickets by vault: %v", name, err)
		}
		if len(tickets) != 2 {
			t.Fatalf("%s: expected 2 tickets, got %d", name, len(tickets))
		}
		for _, ticket := range tickets {
			if ticket.Vault != first.Vault {
				t.Fatalf("%s: foreign ticket returned: %+v", name, ticket)
			}
		}
	}
}
