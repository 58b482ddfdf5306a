package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "vaultd",
		Short:        "Pooled-staking vault with escrowed unstaking",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("state-file", "./data/vault_state.json", "state file path")
	pf.String("pg-dsn", "", "optional Postgres DSN to mirror records into")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Duration("cooldown", 30*24*time.Hour, "unlock cooldown")

	createVaultCmd := &cobra.Command{
		Use:   "create-vault",
		Short: "Register a new vault for the sandbox underlying mint",
		RunE:  runCreateVault,
	}
	createVaultCmd.Flags().String("owner", defaultOwnerHex, "vault owner identity (hex)")
	createVaultCmd.Flags().Uint32("fee-bps", 0, "vault fee rate in basis points")

	stakeCmd := &cobra.Command{
		Use:   "stake",
		Short: "Deposit underlying into a vault and mint derivative shares",
		RunE:  runStake,
	}
	stakeCmd.Flags().String("vault", "", "vault id (hex)")
	stakeCmd.Flags().String("staker", defaultStakerHex, "staker identity (hex)")
	stakeCmd.Flags().Uint64("amount", 0, "underlying amount to stake")
	stakeCmd.Flags().Bool("fund", true, "mint the amount to the staker from the sandbox faucet first")

	addRewardCmd := &cobra.Command{
		Use:   "add-reward",
		Short: "Push a reward from the vault owner into the locked position",
		RunE:  runAddReward,
	}
	addRewardCmd.Flags().String("vault", "", "vault id (hex)")
	addRewardCmd.Flags().Uint64("amount", 0, "reward amount")
	addRewardCmd.Flags().Bool("fund", true, "mint the amount to the vault owner from the sandbox faucet first")

	beginUnstakeCmd := &cobra.Command{
		Use:   "begin-unstake",
		Short: "Escrow derivative shares and open a timed withdrawal",
		RunE:  runBeginUnstake,
	}
	beginUnstakeCmd.Flags().String("vault", "", "vault id (hex)")
	beginUnstakeCmd.Flags().String("owner", defaultStakerHex, "share owner identity (hex)")
	beginUnstakeCmd.Flags().Uint64("shares", 0, "derivative shares to unstake")

	mergeUnstakeCmd := &cobra.Command{
		Use:   "merge-unstake",
		Short: "Cancel a pending withdrawal and restore the position",
		RunE:  runMergeUnstake,
	}
	mergeUnstakeCmd.Flags().String("ticket", "", "ticket id (hex)")
	mergeUnstakeCmd.Flags().String("owner", defaultStakerHex, "ticket owner identity (hex)")

	withdrawUnstakeCmd := &cobra.Command{
		Use:   "withdraw-unstake",
		Short: "Settle a matured withdrawal and pay out underlying",
		RunE:  runWithdrawUnstake,
	}
	withdrawUnstakeCmd.Flags().String("ticket", "", "ticket id (hex)")
	withdrawUnstakeCmd.Flags().String("owner", defaultStakerHex, "ticket owner identity (hex)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print vault and ticket records",
		RunE:  runShow,
	}

	root.AddCommand(createVaultCmd, stakeCmd, addRewardCmd, beginUnstakeCmd,
		mergeUnstakeCmd, withdrawUnstakeCmd, showCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
