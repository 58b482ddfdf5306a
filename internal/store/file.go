package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lstvault/internal/lockman"
	"lstvault/internal/token"
	"lstvault/internal/vault"
)

// FileStore persists records to a single JSON state file so CLI runs
// are stateful across invocations. Alongside the records it can carry
// snapshots of the token ledger and the lock manager, so a later
// invocation rebuilds the whole world the records depend on. Saves go
// through a tmp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  stateDoc
}

type stateDoc struct {
	Vaults    []vault.Vault           `json:"vaults"`
	Tickets   []vault.UnstakingTicket `json:"tickets"`
	Bank      *token.BankState        `json:"bank,omitempty"`
	Locks     *lockman.LockerState    `json:"locks,omitempty"`
	UpdatedAt string                  `json:"updated_at"`
}

// NewFileStore opens (or initializes) the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}

	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return s, nil
}

func (s *FileStore) PutVault(ctx context.Context, v vault.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.doc.Vaults {
		if s.doc.Vaults[i].ID == v.ID {
			s.doc.Vaults[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		s.doc.Vaults = append(s.doc.Vaults, v)
	}
	return s.saveLocked()
}

func (s *FileStore) GetVault(ctx context.Context, id common.Address) (vault.Vault, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.doc.Vaults {
		if v.ID == id {
			return v, true, nil
		}
	}
	return vault.Vault{}, false, nil
}

func (s *FileStore) PutTicket(ctx context.Context, t vault.UnstakingTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.doc.Tickets {
		if s.doc.Tickets[i].ID == t.ID {
			s.doc.Tickets[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		s.doc.Tickets = append(s.doc.Tickets, t)
	}
	return s.saveLocked()
}

func (s *FileStore) GetTicket(ctx context.Context, id common.Address) (vault.UnstakingTicket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.doc.Tickets {
		if t.ID == id {
			return t, true, nil
		}
	}
	return vault.UnstakingTicket{}, false, nil
}

func (s *FileStore) DeleteTicket(ctx context.Context, id common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.doc.Tickets {
		if t.ID == id {
			s.doc.Tickets = append(s.doc.Tickets[:i], s.doc.Tickets[i+1:]...)
			return s.saveLocked()
		}
	}
	return nil
}

func (s *FileStore) TicketsByVault(ctx context.Context, vaultID common.Address) ([]vault.UnstakingTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets := make([]vault.UnstakingTicket, 0)
	for _, t := range s.doc.Tickets {
		if t.Vault == vaultID {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].ID.Hex() < tickets[j].ID.Hex()
	})
	return tickets, nil
}

// Vaults returns every vault record in the state file.
func (s *FileStore) Vaults() []vault.Vault {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vault.Vault, len(s.doc.Vaults))
	copy(out, s.doc.Vaults)
	return out
}

// Tickets returns every ticket record in the state file.
func (s *FileStore) Tickets() []vault.UnstakingTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vault.UnstakingTicket, len(s.doc.Tickets))
	copy(out, s.doc.Tickets)
	return out
}

// PutWorld persists the token-ledger and lock-manager snapshots next
// to the records.
func (s *FileStore) PutWorld(bank token.BankState, locks lockman.LockerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Bank = &bank
	s.doc.Locks = &locks
	return s.saveLocked()
}

// World returns the persisted snapshots, if present.
func (s *FileStore) World() (token.BankState, lockman.LockerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Bank == nil || s.doc.Locks == nil {
		return token.BankState{}, lockman.LockerState{}, false
	}
	return *s.doc.Bank, *s.doc.Locks, true
}

func (s *FileStore) saveLocked() error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	s.doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
