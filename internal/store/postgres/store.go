package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lstvault/internal/vault"
)

// Store provides Postgres persistence for vault and ticket records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the record tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vaults (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			underlying_mint TEXT NOT NULL,
			derivative_mint TEXT NOT NULL,
			escrow TEXT NOT NULL,
			total_derivative_minted NUMERIC(20,0) NOT NULL,
			total_underlying_staked NUMERIC(20,0) NOT NULL,
			fee_basis_points INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS unstaking_tickets (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			vault TEXT NOT NULL REFERENCES vaults(id),
			partial_unlock TEXT NOT NULL,
			derivative_amount NUMERIC(20,0) NOT NULL,
			underlying_amount NUMERIC(20,0) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS unstaking_tickets_vault_idx ON unstaking_tickets (vault);
	`)
	return err
}

// PutVault inserts or updates a vault record.
func (s *Store) PutVault(ctx context.Context, v vault.Vault) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vaults (
			id, owner, underlying_mint, derivative_mint, escrow,
			total_derivative_minted, total_underlying_staked, fee_basis_points,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		ON CONFLICT (id)
		DO UPDATE SET
			total_derivative_minted = EXCLUDED.total_derivative_minted,
			total_underlying_staked = EXCLUDED.total_underlying_staked,
			fee_basis_points = EXCLUDED.fee_basis_points,
			updated_at = now()
	`,
		v.ID.Hex(),
		v.Owner.Hex(),
		v.UnderlyingMint.Hex(),
		v.DerivativeMint.Hex(),
		v.Escrow.Hex(),
		fmt.Sprintf("%d", v.TotalDerivativeMinted),
		fmt.Sprintf("%d", v.TotalUnderlyingStaked),
		int32(v.FeeBasisPoints),
	)
	return err
}

// GetVault loads a vault record by id.
func (s *Store) GetVault(ctx context.Context, id common.Address) (vault.Vault, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, underlying_mint, derivative_mint, escrow,
		       total_derivative_minted::TEXT, total_underlying_staked::TEXT, fee_basis_points
		FROM vaults WHERE id = $1
	`, id.Hex())

	v, err := scanVault(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vault.Vault{}, false, nil
		}
		return vault.Vault{}, false, err
	}
	return v, true, nil
}

// ListVaults returns every vault record.
func (s *Store) ListVaults(ctx context.Context) ([]vault.Vault, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner, underlying_mint, derivative_mint, escrow,
		       total_derivative_minted::TEXT, total_underlying_staked::TEXT, fee_basis_points
		FROM vaults ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vaults := make([]vault.Vault, 0)
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// PutTicket inserts or updates a ticket record.
func (s *Store) PutTicket(ctx context.Context, t vault.UnstakingTicket) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO unstaking_tickets (
			id, owner, vault, partial_unlock, derivative_amount, underlying_amount,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		ON CONFLICT (id)
		DO UPDATE SET
			partial_unlock = EXCLUDED.partial_unlock,
			derivative_amount = EXCLUDED.derivative_amount,
			underlying_amount = EXCLUDED.underlying_amount,
			updated_at = now()
	`,
		t.ID.Hex(),
		t.Owner.Hex(),
		t.Vault.Hex(),
		t.PartialUnlock.Hex(),
		fmt.Sprintf("%d", t.DerivativeAmount),
		fmt.Sprintf("%d", t.UnderlyingAmount),
	)
	return err
}

// GetTicket loads a ticket record by id.
func (s *Store) GetTicket(ctx context.Context, id common.Address) (vault.UnstakingTicket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, vault, partial_unlock,
		       derivative_amount::TEXT, underlying_amount::TEXT
		FROM unstaking_tickets WHERE id = $1
	`, id.Hex())

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vault.UnstakingTicket{}, false, nil
		}
		return vault.UnstakingTicket{}, false, err
	}
	return t, true, nil
}

// DeleteTicket removes a ticket record.
func (s *Store) DeleteTicket(ctx context.Context, id common.Address) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM unstaking_tickets WHERE id = $1`, id.Hex())
	return err
}

// TicketsByVault lists the in-flight tickets for a vault.
func (s *Store) TicketsByVault(ctx context.Context, vaultID common.Address) ([]vault.UnstakingTicket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner, vault, partial_unlock,
		       derivative_amount::TEXT, underlying_amount::TEXT
		FROM unstaking_tickets WHERE vault = $1
		ORDER BY id
	`, vaultID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]vault.UnstakingTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (vault.Vault, error) {
	var (
		v              vault.Vault
		id, owner      string
		uMint, dMint   string
		escrow         string
		minted, staked string
		feeBps         int32
	)
	if err := row.Scan(&id, &owner, &uMint, &dMint, &escrow, &minted, &staked, &feeBps); err != nil {
		return vault.Vault{}, err
	}
	v.ID = common.HexToAddress(id)
	v.Owner = common.HexToAddress(owner)
	v.UnderlyingMint = common.HexToAddress(uMint)
	v.DerivativeMint = common.HexToAddress(dMint)
	v.Escrow = common.HexToAddress(escrow)
	v.FeeBasisPoints = uint16(feeBps)

	var err error
	if v.TotalDerivativeMinted, err = parseUint(minted); err != nil {
		return vault.Vault{}, fmt.Errorf("total_derivative_minted: %w", err)
	}
	if v.TotalUnderlyingStaked, err = parseUint(staked); err != nil {
		return vault.Vault{}, fmt.Errorf("total_underlying_staked: %w", err)
	}
	return v, nil
}

func scanTicket(row rowScanner) (vault.UnstakingTicket, error) {
	var (
		t                      vault.UnstakingTicket
		id, owner, vaultID     string
		partialUnlock          string
		derivative, underlying string
	)
	if err := row.Scan(&id, &owner, &vaultID, &partialUnlock, &derivative, &underlying); err != nil {
		return vault.UnstakingTicket{}, err
	}
	t.ID = common.HexToAddress(id)
	t.Owner = common.HexToAddress(owner)
	t.Vault = common.HexToAddress(vaultID)
	t.PartialUnlock = common.HexToAddress(partialUnlock)

	var err error
	if t.DerivativeAmount, err = parseUint(derivative); err != nil {
		return vault.UnstakingTicket{}, fmt.Errorf("derivative_amount: %w", err)
	}
	if t.UnderlyingAmount, err = parseUint(underlying); err != nil {
		return vault.UnstakingTicket{}, fmt.Errorf("underlying_amount: %w", err)
	}
	return t, nil
}

func parseUint(value string) (uint64, error) {
	out, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid uint64 %q: %w", value, err)
	}
	return out, nil
}
