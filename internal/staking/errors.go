package staking

import "errors"

var (
	ErrVaultNotFound  = errors.New("vault not found")
	ErrVaultExists    = errors.New("vault already exists")
	ErrTicketNotFound = errors.New("unstaking ticket not found")

	// ErrEscrowMismatch means a ticket's escrow custody account holds
	// fewer shares than the ticket recorded. Fatal: indicates external
	// tampering or a lost transfer, never retriable.
	ErrEscrowMismatch = errors.New("escrow custody balance below ticket amount")
)
