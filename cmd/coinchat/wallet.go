package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect and top up the coin balance",
	}

	cmd.AddCommand(newWalletBalanceCmd())
	cmd.AddCommand(newWalletCreditCmd())
	cmd.AddCommand(newWalletEntriesCmd())
	return cmd
}

func newWalletBalanceCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the current balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cur := a.cfg.Billing.Currency
			bal, err := a.ledger.Balance(cmd.Context(), cur)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s (%d per message)\n", bal, cur, a.cfg.Billing.CostPerMessage)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newWalletCreditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "credit <amount>",
		Short: "Add coins to the balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[0])
			}

			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			cur := a.cfg.Billing.Currency
			bal, err := a.ledger.Credit(cmd.Context(), cur, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credited %d %s, balance now %d\n", amount, cur, bal)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newWalletEntriesCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List recent ledger entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.Entries(cmd.Context(), a.cfg.Billing.Currency, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %+d  %-8s  balance %d\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Amount, e.Reason, e.Balance)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	return cmd
}
