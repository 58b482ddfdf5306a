package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxFeeBasisPoints is the exclusive upper bound for a vault fee rate.
const MaxFeeBasisPoints = 10_000

var vaultSeed = []byte("vault")

// Vault is the persistent accounting record for one staking pool.
// TotalUnderlyingStaked is the amount of underlying the pool is owed
// (principal plus accrued rewards, net of realized withdrawals);
// TotalDerivativeMinted is the outstanding share supply. The share
// price is their quotient, so the two totals are either both zero or
// both nonzero after every operation.
type Vault struct {
	ID                    common.Address `json:"id"`
	Owner                 common.Address `json:"owner"`
	UnderlyingMint        common.Address `json:"underlying_mint"`
	DerivativeMint        common.Address `json:"derivative_mint"`
	Escrow                common.Address `json:"escrow"`
	TotalDerivativeMinted uint64         `json:"total_derivative_minted"`
	TotalUnderlyingStaked uint64         `json:"total_underlying_staked"`
	FeeBasisPoints        uint16         `json:"fee_basis_points"`
}

// DeriveID returns the deterministic vault identity for an owner and
// underlying mint pair.
func DeriveID(owner, underlyingMint common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(vaultSeed, owner.Bytes(), underlyingMint.Bytes()))
}

// SharesForDeposit converts an underlying amount into the derivative
// shares it buys at the current pool rate. An empty pool prices 1:1.
// Truncation favors the pool over the depositor.
func (v *Vault) SharesForDeposit(underlyingAmt uint64) (uint64, error) {
	if v.TotalUnderlyingStaked == 0 {
		return underlyingAmt, nil
	}
	return mulDiv(underlyingAmt, v.TotalDerivativeMinted, v.TotalUnderlyingStaked)
}

// UnderlyingForShares converts derivative shares into the underlying
// amount they redeem at the current pool rate. An empty pool prices 1:1.
// Truncation favors the pool over the withdrawer.
func (v *Vault) UnderlyingForShares(shares uint64) (uint64, error) {
	if v.TotalDerivativeMinted == 0 {
		return shares, nil
	}
	return mulDiv(shares, v.TotalUnderlyingStaked, v.TotalDerivativeMinted)
}

// Stake records a deposit on the ledger. Both deltas must have been
// computed by the caller at the current rate; the ledger itself never
// converts between denominations.
func (v *Vault) Stake(underlyingAmt, shares uint64) error {
	minted, err := checkedAdd(v.TotalDerivativeMinted, shares)
	if err != nil {
		return err
	}
	staked, err := checkedAdd(v.TotalUnderlyingStaked, underlyingAmt)
	if err != nil {
		return err
	}
	v.TotalDerivativeMinted = minted
	v.TotalUnderlyingStaked = staked
	return nil
}

// Unstake records a realized withdrawal on the ledger. A delta larger
// than the recorded total signals a bookkeeping inconsistency and
// fails with ErrInvalidAmount rather than clamping.
func (v *Vault) Unstake(shares, underlyingAmt uint64) error {
	staked, err := checkedSub(v.TotalUnderlyingStaked, underlyingAmt)
	if err != nil {
		return err
	}
	minted, err := checkedSub(v.TotalDerivativeMinted, shares)
	if err != nil {
		return err
	}
	v.TotalUnderlyingStaked = staked
	v.TotalDerivativeMinted = minted
	return nil
}

// AddReward credits underlying to the pool without minting shares.
// This is the only operation that moves the share price upward.
func (v *Vault) AddReward(underlyingAmt uint64) error {
	staked, err := checkedAdd(v.TotalUnderlyingStaked, underlyingAmt)
	if err != nil {
		return err
	}
	v.TotalUnderlyingStaked = staked
	return nil
}

// ValidateFee checks a fee rate against the basis-point bound.
func ValidateFee(feeBps uint16) error {
	if feeBps >= MaxFeeBasisPoints {
		return ErrInvalidFeeRate
	}
	return nil
}
