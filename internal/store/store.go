// Package store persists vault and ticket records.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"lstvault/internal/vault"
)

// Store is the record persistence boundary for the staking service.
type Store interface {
	PutVault(ctx context.Context, v vault.Vault) error
	GetVault(ctx context.Context, id common.Address) (vault.Vault, bool, error)

	PutTicket(ctx context.Context, t vault.UnstakingTicket) error
	GetTicket(ctx context.Context, id common.Address) (vault.UnstakingTicket, bool, error)
	DeleteTicket(ctx context.Context, id common.Address) error
	TicketsByVault(ctx context.Context, vaultID common.Address) ([]vault.UnstakingTicket, error)
}
