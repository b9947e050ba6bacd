package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/accounts"
	"github.com/cleared-dev/ledgerd/internal/model"
)

func newAccountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	cmd.AddCommand(
		newAccountAddCommand(a),
		newAccountListCommand(a),
		newAccountLoadCommand(a),
		newAccountExportCommand(a),
	)
	return cmd
}

func newAccountAddCommand(a *app) *cobra.Command {
	var opening, openingDate string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bal, err := parseMoney(opening)
			if err != nil {
				return err
			}
			date, err := parseDate(openingDate)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				acct, err := a.accounts().Create(ctx, a.user(), args[0], bal, date)
				if err != nil {
					return err
				}
				green.Fprintf(cmd.OutOrStdout(), "Added account %d %s\n", acct.ID, acct.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opening, "opening", "0", "opening balance")
	cmd.Flags().StringVar(&openingDate, "opening-date", "", "opening balance date (YYYY-MM-DD)")
	return cmd
}

func newAccountListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with current balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				accts, err := a.accounts().All(ctx, a.user())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tOPENING\tBALANCE")
				for _, acct := range accts {
					bal, err := a.balances().Balance(ctx, a.user(), acct.ID, nil)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", acct.ID, acct.Name, openingText(acct), bal.StringFixed(2))
				}
				return tw.Flush()
			})
		},
	}
}

func openingText(acct model.Account) string {
	s := acct.OpeningBalance.StringFixed(2)
	if acct.OpeningBalanceDate != nil {
		s += " @ " + acct.OpeningBalanceDate.Format(dateLayout)
	}
	return s
}

func newAccountLoadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.csv>",
		Short: "Create accounts from a CSV file (" + accounts.Header + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				loaded, err := a.accounts().LoadFile(ctx, a.user(), args[0])
				if err != nil {
					return err
				}
				green.Fprintf(cmd.OutOrStdout(), "Loaded %d accounts\n", len(loaded))
				return nil
			})
		},
	}
}

func newAccountExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write accounts as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				return a.accounts().Export(ctx, a.user(), cmd.OutOrStdout())
			})
		},
	}
}
