package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lstvault/internal/vault"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	vaults  map[common.Address]vault.Vault
	tickets map[common.Address]vault.UnstakingTicket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults:  make(map[common.Address]vault.Vault),
		tickets: make(map[common.Address]vault.UnstakingTicket),
	}
}

func (s *MemoryStore) PutVault(ctx context.Context, v vault.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[v.ID] = v
	return nil
}

func (s *MemoryStore) GetVault(ctx context.Context, id common.Address) (vault.Vault, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[id]
	return v, ok, nil
}

func (s *MemoryStore) PutTicket(ctx context.Context, t vault.UnstakingTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

func (s *MemoryStore) GetTicket(ctx context.Context, id common.Address) (vault.UnstakingTicket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok, nil
}

func (s *MemoryStore) DeleteTicket(ctx context.Context, id common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

func (s *MemoryStore) TicketsByVault(ctx context.Context, vaultID common.Address) ([]vault.UnstakingTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]vault.UnstakingTicket, 0)
	for _, t := range s.tickets {
		if t.Vault == vaultID {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].ID.Hex() < tickets[j].ID.Hex()
	})
	return tickets, nil
}
