package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lstvault/internal/config"
	"lstvault/internal/store"
	"lstvault/internal/store/postgres"
	"lstvault/internal/vault"
)

// runShow prints the persisted vault and ticket records as JSON.
func runShow(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		vaults  []vault.Vault
		tickets []vault.UnstakingTicket
	)

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()

		vaults, err = pg.ListVaults(ctx)
		if err != nil {
			return fmt.Errorf("list vaults: %w", err)
		}
		for _, v := range vaults {
			vaultTickets, err := pg.TicketsByVault(ctx, v.ID)
			if err != nil {
				return fmt.Errorf("list tickets: %w", err)
			}
			tickets = append(tickets, vaultTickets...)
		}
	} else {
		fileStore, err := store.NewFileStore(cfg.StateFile)
		if err != nil {
			return err
		}
		vaults = fileStore.Vaults()
		tickets = fileStore.Tickets()
	}

	out := struct {
		Vaults  []vault.Vault           `json:"vaults"`
		Tickets []vault.UnstakingTicket `json:"tickets"`
	}{Vaults: vaults, Tickets: tickets}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
