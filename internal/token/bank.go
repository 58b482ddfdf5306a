// Package token provides the in-process token primitive layer: mints,
// balance-holding accounts, and the atomic transfer/mint/burn/close
// capabilities the staking service composes. Every mutation either
// commits completely or returns an error with no state change.
package token

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var accountSeed = []byte("token-account")

// Authority is the capability a caller presents to mutate an account
// or mint it holds. Holding the identity is the proof; there is no
// separate signature layer in-process.
type Authority struct {
	Holder common.Address
}

// AuthorityFor returns the authority capability held by an identity.
func AuthorityFor(holder common.Address) Authority {
	return Authority{Holder: holder}
}

// Mint is a token type with a single mint-and-burn authority.
type Mint struct {
	ID        common.Address `json:"id"`
	Authority common.Address `json:"authority"`
	Supply    uint64         `json:"supply"`
}

// Account holds a balance of one mint on behalf of an owner.
type Account struct {
	ID      common.Address `json:"id"`
	Mint    common.Address `json:"mint"`
	Owner   common.Address `json:"owner"`
	Balance uint64         `json:"balance"`
}

// Bank is the in-memory token ledger. Each account creation charges a
// fixed storage deposit which CloseAccount refunds to a beneficiary.
type Bank struct {
	mu             sync.Mutex
	mints          map[common.Address]*Mint
	accounts       map[common.Address]*Account
	storageCredits map[common.Address]uint64
	accountDeposit uint64
}

// NewBank builds an empty bank. accountDeposit is the storage cost
// charged per account record and refunded on close.
func NewBank(accountDeposit uint64) *Bank {
	return &Bank{
		mints:          make(map[common.Address]*Mint),
		accounts:       make(map[common.Address]*Account),
		storageCredits: make(map[common.Address]uint64),
		accountDeposit: accountDeposit,
	}
}

// AccountID derives the associated account identity for a mint and
// owner pair.
func AccountID(mint, owner common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(accountSeed, mint.Bytes(), owner.Bytes()))
}

// CreateMint registers a new mint under the given authority.
func (b *Bank) CreateMint(id, authority common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.mints[id]; ok {
		return ErrMintExists
	}
	b.mints[id] = &Mint{ID: id, Authority: authority}
	return nil
}

// CreateAccount registers a balance account with an explicit identity.
func (b *Bank) CreateAccount(id, mint, owner common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createAccountLocked(id, mint, owner)
}

// EnsureAccount returns the associated account for a mint and owner,
// creating it when missing.
func (b *Bank) EnsureAccount(mint, owner common.Address) (common.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := AccountID(mint, owner)
	if _, ok := b.accounts[id]; ok {
		return id, nil
	}
	if err := b.createAccountLocked(id, mint, owner); err != nil {
		return common.Address{}, err
	}
	return id, nil
}

func (b *Bank) createAccountLocked(id, mint, owner common.Address) error {
	if _, ok := b.mints[mint]; !ok {
		return ErrMintNotFound
	}
	if _, ok := b.accounts[id]; ok {
		return ErrAccountExists
	}
	b.accounts[id] = &Account{ID: id, Mint: mint, Owner: owner}
	return nil
}

// Transfer moves amount between two accounts of the same mint. The
// authority must hold the source account.
func (b *Bank) Transfer(auth Authority, from, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	source, ok := b.accounts[from]
	if !ok {
		return ErrAccountNotFound
	}
	dest, ok := b.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if auth.Holder != source.Owner {
		return ErrUnauthorized
	}
	if source.Mint != dest.Mint {
		return ErrMintMismatch
	}
	if amount > source.Balance {
		return ErrInsufficientBalance
	}
	if dest.Balance+amount < dest.Balance {
		return ErrBalanceOverflow
	}
	source.Balance -= amount
	dest.Balance += amount
	return nil
}

// MintTo issues new supply to an account. The authority must hold the
// mint.
func (b *Bank) MintTo(auth Authority, mint, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.mints[mint]
	if !ok {
		return ErrMintNotFound
	}
	if auth.Holder != m.Authority {
		return ErrUnauthorized
	}
	dest, ok := b.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if dest.Mint != mint {
		return ErrMintMismatch
	}
	if m.Supply+amount < m.Supply || dest.Balance+amount < dest.Balance {
		return ErrBalanceOverflow
	}
	m.Supply += amount
	dest.Balance += amount
	return nil
}

// Burn destroys amount from an account and reduces the mint supply.
// The authority must hold the account.
func (b *Bank) Burn(auth Authority, from common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	source, ok := b.accounts[from]
	if !ok {
		return ErrAccountNotFound
	}
	if auth.Holder != source.Owner {
		return ErrUnauthorized
	}
	if amount > source.Balance {
		return ErrInsufficientBalance
	}
	m := b.mints[source.Mint]
	source.Balance -= amount
	m.Supply -= amount
	return nil
}

// CloseAccount removes an empty account and refunds its storage
// deposit to the beneficiary. The authority must hold the account.
func (b *Bank) CloseAccount(auth Authority, id, beneficiary common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	account, ok := b.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if auth.Holder != account.Owner {
		return ErrUnauthorized
	}
	if account.Balance != 0 {
		return ErrNonZeroBalance
	}
	delete(b.accounts, id)
	b.storageCredits[beneficiary] += b.accountDeposit
	return nil
}

// Balance returns the balance of an account.
func (b *Bank) Balance(id common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	account, ok := b.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return account.Balance, nil
}

// Supply returns the outstanding supply of a mint.
func (b *Bank) Supply(mint common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.mints[mint]
	if !ok {
		return 0, ErrMintNotFound
	}
	return m.Supply, nil
}

// StorageCredit returns the storage deposits refunded to an identity
// by closed accounts.
func (b *Bank) StorageCredit(beneficiary common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storageCredits[beneficiary]
}

// BankState is the serializable snapshot of a Bank.
type BankState struct {
	AccountDeposit uint64                    `json:"account_deposit"`
	Mints          []Mint                    `json:"mints"`
	Accounts       []Account                 `json:"accounts"`
	StorageCredits map[common.Address]uint64 `json:"storage_credits,omitempty"`
}

// Snapshot captures the full ledger for persistence. Entries are
// sorted so repeated snapshots of the same ledger serialize
// identically.
func (b *Bank) Snapshot() BankState {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := BankState{
		AccountDeposit: b.accountDeposit,
		Mints:          make([]Mint, 0, len(b.mints)),
		Accounts:       make([]Account, 0, len(b.accounts)),
	}
	for _, m := range b.mints {
		state.Mints = append(state.Mints, *m)
	}
	for _, a := range b.accounts {
		state.Accounts = append(state.Accounts, *a)
	}
	sort.Slice(state.Mints, func(i, j int) bool {
		return state.Mints[i].ID.Hex() < state.Mints[j].ID.Hex()
	})
	sort.Slice(state.Accounts, func(i, j int) bool {
		return state.Accounts[i].ID.Hex() < state.Accounts[j].ID.Hex()
	})
	if len(b.storageCredits) > 0 {
		state.StorageCredits = make(map[common.Address]uint64, len(b.storageCredits))
		for beneficiary, credit := range b.storageCredits {
			state.StorageCredits[beneficiary] = credit
		}
	}
	return state
}

// RestoreBank rebuilds a Bank from a snapshot.
func RestoreBank(state BankState) *Bank {
	b := NewBank(state.AccountDeposit)
	for _, m := range state.Mints {
		mint := m
		b.mints[mint.ID] = &mint
	}
	for _, a := range state.Accounts {
		account := a
		b.accounts[account.ID] = &account
	}
	for beneficiary, credit := range state.StorageCredits {
		b.storageCredits[beneficiary] = credit
	}
	return b
}
