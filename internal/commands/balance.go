package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/ledger"
)

func newBalanceCommand(a *app) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(asOf)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				acct, err := a.account(ctx, args[0])
				if err != nil {
					return err
				}
				bal, err := a.balances().Balance(ctx, a.user(), acct.ID, date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", acct.Name, bal.StringFixed(2))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "balance at the end of this day (YYYY-MM-DD)")
	return cmd
}

func newReconcileCommand(a *app) *cobra.Command {
	var actual, asOf string

	cmd := &cobra.Command{
		Use:   "reconcile <account>",
		Short: "Set the opening balance so the ledger matches the bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseMoney(actual)
			if err != nil {
				return err
			}
			date, err := parseDate(asOf)
			if err != nil {
				return err
			}
			if date == nil {
				return fmt.Errorf("--as-of is required")
			}
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				acct, err := a.account(ctx, args[0])
				if err != nil {
					return err
				}
				rec, err := a.balances().Reconcile(ctx, a.user(), acct.ID, amount, *date)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s as of %s\n", acct.Name, rec.AsOf.Format(dateLayout))
				fmt.Fprintf(out, "  ledger:  %s\n", rec.Derived.StringFixed(2))
				fmt.Fprintf(out, "  actual:  %s\n", rec.Actual.StringFixed(2))
				c := green
				if !rec.Delta.IsZero() {
					c = yellow
				}
				c.Fprintf(out, "  delta:   %s\n", rec.Delta.StringFixed(2))
				fmt.Fprintf(out, "  opening: %s @ %s\n", rec.OpeningBalance.StringFixed(2), rec.OpeningBalanceDate.Format(dateLayout))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actual, "balance", "", "balance reported by the bank (required)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "statement date (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("balance")
	_ = cmd.MarkFlagRequired("as-of")
	return cmd
}

func newRegisterCommand(a *app) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "register <account>",
		Short: "Write the account register as CSV with a running balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(asOf)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				acct, err := a.account(ctx, args[0])
				if err != nil {
					return err
				}
				lines, err := a.balances().Register(ctx, a.user(), acct.ID, date)
				if err != nil {
					return err
				}
				return ledger.WriteRegister(cmd.OutOrStdout(), lines)
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "last day to include (YYYY-MM-DD)")
	return cmd
}
