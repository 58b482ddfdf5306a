package vault

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ticketEscrowSeed = []byte("ticket-escrow")

// UnstakingTicket tracks one in-flight withdrawal. DerivativeAmount is
// the share count frozen in the ticket's escrow custody account;
// UnderlyingAmount is the payout fixed at the exchange rate in effect
// when the ticket was opened. Neither is ever recomputed, so a pending
// withdrawal cannot be diluted by later rate movement.
type UnstakingTicket struct {
	ID               common.Address `json:"id"`
	Owner            common.Address `json:"owner"`
	Vault            common.Address `json:"vault"`
	PartialUnlock    common.Address `json:"partial_unlock"`
	DerivativeAmount uint64         `json:"derivative_amount"`
	UnderlyingAmount uint64         `json:"underlying_amount"`
}

// NewTicketID draws a fresh random ticket identity. Tickets are not
// derived from their owner so one owner can hold several at once.
func NewTicketID() (common.Address, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return common.Address{}, fmt.Errorf("ticket id entropy: %w", err)
	}
	return common.BytesToAddress(crypto.Keccak256(seed[:])), nil
}

// EscrowAccountID returns the deterministic identity of the ticket's
// escrow custody account.
func (t *UnstakingTicket) EscrowAccountID() common.Address {
	return DeriveTicketEscrow(t.ID)
}

// DeriveTicketEscrow derives the escrow custody account identity for a
// ticket.
func DeriveTicketEscrow(ticketID common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(ticketEscrowSeed, ticketID.Bytes()))
}
