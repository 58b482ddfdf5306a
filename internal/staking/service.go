// Package staking orchestrates the vault lifecycle: deposits into the
// locked position, derivative minting, and the three-phase unstaking
// flow (begin, merge, withdraw) with escrowed derivative custody.
package staking

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"lstvault/internal/lockman"
	"lstvault/internal/store"
	"lstvault/internal/token"
	"lstvault/internal/vault"
)

var lstMintSeed = []byte("lst-mint")

// Config holds service policy knobs.
type Config struct {
	// UnlockMemo is attached to every partial-unlock request.
	UnlockMemo string
	// MaxLock applies the lock manager's max-lock policy to new vault
	// escrows. A max-locked escrow refuses partial unlocks, so this is
	// only useful for pools that never intend to unstake.
	MaxLock bool
}

// Service composes the vault ledger, the token bank, and the lock
// manager into the user-facing staking operations. Operations against
// one vault must be serialized by the caller; distinct tickets may be
// worked concurrently.
type Service struct {
	cfg    Config
	store  store.Store
	bank   *token.Bank
	locks  lockman.LockManager
	logger *zap.Logger
}

// NewService builds a Service with its dependencies.
func NewService(cfg Config, recordStore store.Store, bank *token.Bank, locks lockman.LockManager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		store:  recordStore,
		bank:   bank,
		locks:  locks,
		logger: logger,
	}
}

// DeriveMint returns the derivative mint identity for a vault.
func DeriveMint(vaultID common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(lstMintSeed, vaultID.Bytes()))
}

// CreateVault registers a new pool: a derivative mint under the
// vault's authority and a lock-manager escrow with the vault as owner
// of record.
func (s *Service) CreateVault(ctx context.Context, owner, underlyingMint common.Address, feeBps uint16) (vault.Vault, error) {
	if err := vault.ValidateFee(feeBps); err != nil {
		return vault.Vault{}, err
	}

	vaultID := vault.DeriveID(owner, underlyingMint)
	if _, ok, err := s.store.GetVault(ctx, vaultID); err != nil {
		return vault.Vault{}, fmt.Errorf("load vault: %w", err)
	} else if ok {
		return vault.Vault{}, ErrVaultExists
	}

	derivativeMint := DeriveMint(vaultID)
	if err := s.bank.CreateMint(derivativeMint, vaultID); err != nil {
		return vault.Vault{}, fmt.Errorf("create derivative mint: %w", err)
	}

	escrow, err := s.locks.OpenEscrow(ctx, vaultID)
	if err != nil {
		return vault.Vault{}, fmt.Errorf("open escrow: %w", err)
	}
	if s.cfg.MaxLock {
		if err := s.locks.ToggleMaxLock(ctx, escrow, true); err != nil {
			return vault.Vault{}, fmt.Errorf("toggle max lock: %w", err)
		}
	}

	v := vault.Vault{
		ID:             vaultID,
		Owner:          owner,
		UnderlyingMint: underlyingMint,
		DerivativeMint: derivativeMint,
		Escrow:         escrow,
		FeeBasisPoints: feeBps,
	}
	if err := s.store.PutVault(ctx, v); err != nil {
		return vault.Vault{}, fmt.Errorf("persist vault: %w", err)
	}

	s.logger.Info("vault created",
		zap.String("vault", vaultID.Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("escrow", escrow.Hex()),
		zap.Uint16("fee_bps", feeBps))
	return v, nil
}

// Stake deposits underlying into the locked position and mints
// derivative shares to the staker at the current rate. Returns the
// minted share amount.
func (s *Service) Stake(ctx context.Context, vaultID, staker common.Address, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, vault.ErrInvalidAmount
	}
	v, err := s.loadVault(ctx, vaultID)
	if err != nil {
		return 0, err
	}

	source := token.AccountID(v.UnderlyingMint, staker)
	if err := s.locks.IncreaseLockedAmount(ctx, v.Escrow, token.AuthorityFor(staker), source, amount); err != nil {
		return 0, fmt.Errorf("increase locked amount: %w", err)
	}

	shares, err := v.SharesForDeposit(amount)
	if err != nil {
		return 0, err
	}

	destination, err := s.bank.EnsureAccount(v.DerivativeMint, staker)
	if err != nil {
		return 0, fmt.Errorf("ensure derivative account: %w", err)
	}
	if err := s.bank.MintTo(token.AuthorityFor(v.ID), v.DerivativeMint, destination, shares); err != nil {
		return 0, fmt.Errorf("mint derivative: %w", err)
	}

	if err := v.Stake(amount, shares); err != nil {
		return 0, err
	}
	if err := s.store.PutVault(ctx, v); err != nil {
		return 0, fmt.Errorf("persist vault: %w", err)
	}

	s.logger.Info("stake",
		zap.String("vault", v.ID.Hex()),
		zap.String("staker", staker.Hex()),
		zap.Uint64("underlying", amount),
		zap.Uint64("shares", shares))
	return shares, nil
}

// AddReward pushes underlying from the vault owner into the locked
// position and credits the pool without minting shares, moving the
// exchange rate upward.
func (s *Service) AddReward(ctx context.Context, vaultID, funder common.Address, amount uint64) error {
	if amount == 0 {
		return vault.ErrInvalidAmount
	}
	v, err := s.loadVault(ctx, vaultID)
	if err != nil {
		return err
	}
	if funder != v.Owner {
		return token.ErrUnauthorized
	}

	source := token.AccountID(v.UnderlyingMint, funder)
	if err := s.locks.IncreaseLockedAmount(ctx, v.Escrow, token.AuthorityFor(funder), source, amount); err != nil {
		return fmt.Errorf("increase locked amount: %w", err)
	}

	if err := v.AddReward(amount); err != nil {
		return err
	}
	if err := s.store.PutVault(ctx, v); err != nil {
		return fmt.Errorf("persist vault: %w", err)
	}

	s.logger.Info("reward added",
		zap.String("vault", v.ID.Hex()),
		zap.Uint64("underlying", amount))
	return nil
}

// BeginUnstake opens a withdrawal: it freezes the underlying payout at
// the current rate, moves the shares into a fresh escrow custody
// account held by the vault, and opens a partial unlock with the lock
// manager. The ticket record is persisted only after every external
// step succeeded, so a failed begin leaves nothing behind.
func (s *Service) BeginUnstake(ctx context.Context, vaultID, owner common.Address, shares uint64) (vault.UnstakingTicket, error) {
	if shares == 0 {
		return vault.UnstakingTicket{}, vault.ErrInvalidAmount
	}
	v, err := s.loadVault(ctx, vaultID)
	if err != nil {
		return vault.UnstakingTicket{}, err
	}

	underlying, err := v.UnderlyingForShares(shares)
	if err != nil {
		return vault.UnstakingTicket{}, err
	}

	ticketID, err := vault.NewTicketID()
	if err != nil {
		return vault.UnstakingTicket{}, err
	}
	escrowAccount := vault.DeriveTicketEscrow(ticketID)
	if err := s.bank.CreateAccount(escrowAccount, v.DerivativeMint, v.ID); err != nil {
		return vault.UnstakingTicket{}, fmt.Errorf("create escrow custody account: %w", err)
	}

	source := token.AccountID(v.DerivativeMint, owner)
	if err := s.bank.Transfer(token.AuthorityFor(owner), source, escrowAccount, shares); err != nil {
		s.closeEscrowAccount(v.ID, escrowAccount, owner)
		return vault.UnstakingTicket{}, fmt.Errorf("escrow shares: %w", err)
	}

	partialUnlock, err := s.locks.OpenPartialUnlock(ctx, v.Escrow, underlying, s.cfg.UnlockMemo)
	if err != nil {
		// Unwind the share transfer so a failed begin is a no-op.
		vaultAuth := token.AuthorityFor(v.ID)
		if uerr := s.bank.Transfer(vaultAuth, escrowAccount, source, shares); uerr != nil {
			return vault.UnstakingTicket{}, fmt.Errorf("unwind escrow transfer: %w", uerr)
		}
		s.closeEscrowAccount(v.ID, escrowAccount, owner)
		return vault.UnstakingTicket{}, fmt.Errorf("open partial unlock: %w", err)
	}

	ticket := vault.UnstakingTicket{
		ID:               ticketID,
		Owner:            owner,
		Vault:            v.ID,
		PartialUnlock:    partialUnlock,
		DerivativeAmount: shares,
		UnderlyingAmount: underlying,
	}
	if err := s.store.PutTicket(ctx, ticket); err != nil {
		return vault.UnstakingTicket{}, fmt.Errorf("persist ticket: %w", err)
	}

	s.logger.Info("unstake begun",
		zap.String("vault", v.ID.Hex()),
		zap.String("ticket", ticketID.Hex()),
		zap.String("owner", owner.Hex()),
		zap.Uint64("shares", shares),
		zap.Uint64("underlying", underlying))
	return ticket, nil
}

// MergeUnstake cancels a pending withdrawal: the escrowed shares go
// back to the owner, the partial unlock folds back into the locked
// position, and the ticket is destroyed. Vault totals stay untouched
// since no underlying moved. As on withdraw, a custody balance below
// the ticket amount is fatal.
func (s *Service) MergeUnstake(ctx context.Context, ticketID, caller common.Address) error {
	ticket, v, err := s.loadTicket(ctx, ticketID, caller)
	if err != nil {
		return err
	}

	vaultAuth := token.AuthorityFor(v.ID)
	escrowAccount := ticket.EscrowAccountID()

	balance, err := s.bank.Balance(escrowAccount)
	if err != nil {
		return fmt.Errorf("escrow custody balance: %w", err)
	}
	if balance < ticket.DerivativeAmount {
		return ErrEscrowMismatch
	}

	destination, err := s.bank.EnsureAccount(v.DerivativeMint, ticket.Owner)
	if err != nil {
		return fmt.Errorf("ensure derivative account: %w", err)
	}
	if err := s.bank.Transfer(vaultAuth, escrowAccount, destination, ticket.DerivativeAmount); err != nil {
		return fmt.Errorf("return escrowed shares: %w", err)
	}

	if err := s.locks.MergePartialUnlock(ctx, v.Escrow, ticket.PartialUnlock); err != nil {
		return fmt.Errorf("merge partial unlock: %w", err)
	}

	// Anything deposited into the escrow account beyond the ticket
	// amount also belongs to the owner.
	if err := s.flushEscrowAccount(vaultAuth, escrowAccount, destination); err != nil {
		return err
	}
	if err := s.bank.CloseAccount(vaultAuth, escrowAccount, ticket.Owner); err != nil {
		return fmt.Errorf("close escrow custody account: %w", err)
	}
	if err := s.store.DeleteTicket(ctx, ticketID); err != nil {
		return fmt.Errorf("destroy ticket: %w", err)
	}

	s.logger.Info("unstake merged",
		zap.String("vault", v.ID.Hex()),
		zap.String("ticket", ticketID.Hex()),
		zap.Uint64("shares", ticket.DerivativeAmount))
	return nil
}

// WithdrawUnstake settles a matured withdrawal. The lock-manager
// payout happens before any local mutation so a failed external call
// leaves the ledger untouched. Escrow custody is then reconciled: a
// balance below the ticket amount is fatal, any excess is returned to
// the owner, and exactly the ticket amount is burned. Returns the
// underlying amount paid out.
func (s *Service) WithdrawUnstake(ctx context.Context, ticketID, caller common.Address) (uint64, error) {
	ticket, v, err := s.loadTicket(ctx, ticketID, caller)
	if err != nil {
		return 0, err
	}

	destination, err := s.bank.EnsureAccount(v.UnderlyingMint, caller)
	if err != nil {
		return 0, fmt.Errorf("ensure underlying account: %w", err)
	}
	paid, err := s.locks.WithdrawPartialUnlock(ctx, v.Escrow, ticket.PartialUnlock, destination)
	if err != nil {
		return 0, fmt.Errorf("withdraw partial unlock: %w", err)
	}

	if err := v.Unstake(ticket.DerivativeAmount, ticket.UnderlyingAmount); err != nil {
		return 0, err
	}

	vaultAuth := token.AuthorityFor(v.ID)
	escrowAccount := ticket.EscrowAccountID()
	balance, err := s.bank.Balance(escrowAccount)
	if err != nil {
		return 0, fmt.Errorf("escrow custody balance: %w", err)
	}
	if balance < ticket.DerivativeAmount {
		return 0, ErrEscrowMismatch
	}
	if exceeding := balance - ticket.DerivativeAmount; exceeding > 0 {
		refund, err := s.bank.EnsureAccount(v.DerivativeMint, ticket.Owner)
		if err != nil {
			return 0, fmt.Errorf("ensure derivative account: %w", err)
		}
		if err := s.bank.Transfer(vaultAuth, escrowAccount, refund, exceeding); err != nil {
			return 0, fmt.Errorf("return exceeding shares: %w", err)
		}
	}

	if err := s.bank.Burn(vaultAuth, escrowAccount, ticket.DerivativeAmount); err != nil {
		return 0, fmt.Errorf("burn escrowed shares: %w", err)
	}
	if err := s.bank.CloseAccount(vaultAuth, escrowAccount, caller); err != nil {
		return 0, fmt.Errorf("close escrow custody account: %w", err)
	}
	if err := s.store.DeleteTicket(ctx, ticketID); err != nil {
		return 0, fmt.Errorf("destroy ticket: %w", err)
	}
	if err := s.store.PutVault(ctx, v); err != nil {
		return 0, fmt.Errorf("persist vault: %w", err)
	}

	s.logger.Info("unstake withdrawn",
		zap.String("vault", v.ID.Hex()),
		zap.String("ticket", ticketID.Hex()),
		zap.Uint64("shares", ticket.DerivativeAmount),
		zap.Uint64("underlying", paid))
	return paid, nil
}

// Vault loads a vault record.
func (s *Service) Vault(ctx context.Context, vaultID common.Address) (vault.Vault, error) {
	return s.loadVault(ctx, vaultID)
}

// Ticket loads a ticket record.
func (s *Service) Ticket(ctx context.Context, ticketID common.Address) (vault.UnstakingTicket, error) {
	ticket, ok, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return vault.UnstakingTicket{}, fmt.Errorf("load ticket: %w", err)
	}
	if !ok {
		return vault.UnstakingTicket{}, ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Service) loadVault(ctx context.Context, vaultID common.Address) (vault.Vault, error) {
	v, ok, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return vault.Vault{}, fmt.Errorf("load vault: %w", err)
	}
	if !ok {
		return vault.Vault{}, ErrVaultNotFound
	}
	return v, nil
}

func (s *Service) loadTicket(ctx context.Context, ticketID, caller common.Address) (vault.UnstakingTicket, vault.Vault, error) {
	ticket, ok, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return vault.UnstakingTicket{}, vault.Vault{}, fmt.Errorf("load ticket: %w", err)
	}
	if !ok {
		return vault.UnstakingTicket{}, vault.Vault{}, ErrTicketNotFound
	}
	if caller != ticket.Owner {
		return vault.UnstakingTicket{}, vault.Vault{}, token.ErrUnauthorized
	}
	v, err := s.loadVault(ctx, ticket.Vault)
	if err != nil {
		return vault.UnstakingTicket{}, vault.Vault{}, err
	}
	return ticket, v, nil
}

// flushEscrowAccount drains any leftover balance to destination so the
// account can close.
func (s *Service) flushEscrowAccount(auth token.Authority, escrowAccount, destination common.Address) error {
	balance, err := s.bank.Balance(escrowAccount)
	if err != nil {
		return fmt.Errorf("escrow custody balance: %w", err)
	}
	if balance == 0 {
		return nil
	}
	if err := s.bank.Transfer(auth, escrowAccount, destination, balance); err != nil {
		return fmt.Errorf("drain escrow custody account: %w", err)
	}
	return nil
}

func (s *Service) closeEscrowAccount(vaultID, escrowAccount, beneficiary common.Address) {
	if err := s.bank.CloseAccount(token.AuthorityFor(vaultID), escrowAccount, beneficiary); err != nil {
		s.logger.Warn("close escrow custody account failed",
			zap.String("account", escrowAccount.Hex()),
			zap.Error(err))
	}
}
