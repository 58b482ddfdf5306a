package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func opContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCreateVault(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	ctx, stop := opContext()
	defer stop()

	owner, err := parseAddress(cmd, "owner")
	if err != nil {
		return err
	}
	v, err := env.svc.CreateVault(ctx, owner, underlyingMint, env.cfg.FeeBps)
	if err != nil {
		return err
	}
	if err := env.save(ctx); err != nil {
		return err
	}
	fmt.Printf("vault %s\n", v.ID.Hex())
	return nil
}

func runStake(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	ctx, stop := opContext()
	defer stop()

	vaultID, err := parseAddress(cmd, "vault")
	if err != nil {
		return err
	}
	staker, err := parseAddress(cmd, "staker")
	if err != nil {
		return err
	}
	amount, _ := cmd.Flags().GetUint64("amount")
	if fund, _ := cmd.Flags().GetBool("fund"); fund && amount > 0 {
		if err := env.fund(staker, amount); err != nil {
			return err
		}
	}

	shares, err := env.svc.Stake(ctx, vaultID, staker, amount)
	if err != nil {
		return err
	}
	if err := env.save(ctx); err != nil {
		return err
	}
	fmt.Printf("minted %d shares\n", shares)
	return nil
}

func runAddReward(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	ctx, stop := opContext()
	defer stop()

	vaultID, err := parseAddress(cmd, "vault")
	if err != nil {
		return err
	}
	v, err := env.svc.Vault(ctx, vaultID)
	if err != nil {
		return err
	}
	amount, _ := cmd.Flags().GetUint64("amount")
	if fund, _ := cmd.Flags().GetBool("fund"); fund && amount > 0 {
		if err := env.fund(v.Owner, amount); err != nil {
			return err
		}
	}

	if err := env.svc.AddReward(ctx, vaultID, v.Owner, amount); err != nil {
		return err
	}
	return env.save(ctx)
}

func runBeginUnstake(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	ctx, stop := opContext()
	defer stop()

	vaultID, err := parseAddress(cmd, "vault")
	if err != nil {
		return err
	}
	owner, err := parseAddress(cmd, "owner")
	if err != nil {
		return err
	}
	shares, _ := cmd.Flags().GetUint64("shares")

	ticket, err := env.svc.BeginUnstake(ctx, vaultID, owner, shares)
	if err != nil {
		return err
	}
	if err := env.save(ctx); err != nil {
		return err
	}
	fmt.Printf("ticket %s (%d underlying frozen)\n", ticket.ID.Hex(), ticket.UnderlyingAmount)
	return nil
}

func runMergeUnstake(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	ctx, stop := opContext()
	defer stop()

	ticketID, err := parseAddress(cmd, "ticket")
	if err != nil {
		return err
	}
	owner, err := parseAddress(cmd, "owner")
	if err != nil {
		return err
	}

	if err := env.svc.MergeUnstake(ctx, ticketID, owner); err != nil {
		return err
	}
	return env.save(ctx)
}

func runWithdrawUnstake(cmd *cobra.Command, _ []string) error {
	env, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	ctx, stop := opContext()
	defer stop()

	ticketID, err := parseAddress(cmd, "ticket")
	if err != nil {
		return err
	}
	owner, err := parseAddress(cmd, "owner")
	if err != nil {
		return err
	}

	paid, err := env.svc.WithdrawUnstake(ctx, ticketID, owner)
	if err != nil {
		return err
	}
	if err := env.save(ctx); err != nil {
		return err
	}
	fmt.Printf("paid %d underlying\n", paid)
	return nil
}
