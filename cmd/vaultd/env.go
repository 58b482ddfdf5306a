package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lstvault/internal/config"
	"lstvault/internal/lockman"
	"lstvault/internal/staking"
	"lstvault/internal/store"
	"lstvault/internal/store/postgres"
	"lstvault/internal/token"
)

const (
	defaultOwnerHex  = "0x0000000000000000000000000000000000000a01"
	defaultStakerHex = "0x0000000000000000000000000000000000000a02"
)

// The sandbox runs against one well-known underlying mint whose supply
// is controlled by a faucet identity, so a fresh state file is usable
// without any bootstrap step.
var (
	underlyingMint = common.BytesToAddress(crypto.Keccak256([]byte("sandbox-underlying-mint")))
	faucet         = common.BytesToAddress(crypto.Keccak256([]byte("sandbox-faucet")))
)

// cliEnv rebuilds the in-process world (token ledger, lock manager,
// records) from the state file. Each command runs one operation
// against it and calls save, which writes the world back so the CLI is
// stateful across invocations.
type cliEnv struct {
	cfg     config.Config
	logger  *zap.Logger
	records *store.FileStore
	bank    *token.Bank
	locker  *lockman.Locker
	svc     *staking.Service
}

func openEnv(cmd *cobra.Command) (*cliEnv, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	records, err := store.NewFileStore(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	env := &cliEnv{cfg: cfg, logger: logger, records: records}
	if bankState, lockState, ok := records.World(); ok {
		env.bank = token.RestoreBank(bankState)
		env.locker = lockman.RestoreLocker(env.bank, lockState, cfg.Cooldown)
	} else {
		env.bank = token.NewBank(cfg.AccountDeposit)
		if err := env.bank.CreateMint(underlyingMint, faucet); err != nil {
			return nil, fmt.Errorf("create underlying mint: %w", err)
		}
		env.locker = lockman.NewLocker(env.bank, underlyingMint, cfg.Cooldown)
	}

	env.svc = staking.NewService(staking.Config{
		UnlockMemo: cfg.UnlockMemo,
		MaxLock:    cfg.MaxLock,
	}, records, env.bank, env.locker, logger)
	return env, nil
}

// fund mints underlying to an identity from the sandbox faucet.
func (e *cliEnv) fund(identity common.Address, amount uint64) error {
	account, err := e.bank.EnsureAccount(underlyingMint, identity)
	if err != nil {
		return fmt.Errorf("ensure underlying account: %w", err)
	}
	if err := e.bank.MintTo(token.AuthorityFor(faucet), underlyingMint, account, amount); err != nil {
		return fmt.Errorf("fund %s: %w", identity.Hex(), err)
	}
	return nil
}

// save persists the world snapshots and mirrors records to Postgres
// when configured.
func (e *cliEnv) save(ctx context.Context) error {
	if err := e.records.PutWorld(e.bank.Snapshot(), e.locker.Snapshot()); err != nil {
		return fmt.Errorf("persist world: %w", err)
	}
	if e.cfg.PGDSN != "" {
		if err := mirrorRecords(ctx, e.cfg.PGDSN, e.records); err != nil {
			return fmt.Errorf("mirror to postgres: %w", err)
		}
		e.logger.Info("records mirrored to postgres")
	}
	return nil
}

func (e *cliEnv) close() {
	e.logger.Sync()
}

// mirrorRecords copies the state-file records into Postgres.
func mirrorRecords(ctx context.Context, dsn string, fileStore *store.FileStore) error {
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	for _, v := range fileStore.Vaults() {
		if err := pg.PutVault(ctx, v); err != nil {
			return err
		}
	}
	for _, t := range fileStore.Tickets() {
		if err := pg.PutTicket(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func parseAddress(cmd *cobra.Command, flag string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(flag)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", flag, raw)
	}
	return common.HexToAddress(raw), nil
}
