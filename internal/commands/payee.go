package commands

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/model"
)

func newPayeeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payee",
		Short: "Resolve payees and manage matching patterns",
	}
	cmd.AddCommand(
		newPayeeResolveCommand(a),
		newPayeeAutocompleteCommand(a),
		newPayeeLearnCommand(a),
		newPayeeFeedbackCommand(a),
		newPayeePruneCommand(a),
	)
	return cmd
}

func newPayeeResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <description>",
		Short: "Show which payee a statement description resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				m, ok, err := a.resolver().Resolve(ctx, a.user(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					yellow.Fprintln(cmd.OutOrStdout(), "unresolved")
					return nil
				}
				out := cmd.OutOrStdout()
				green.Fprintf(out, "%s", m.Payee.CanonicalName)
				fmt.Fprintf(out, " (%s, confidence %.2f", m.Strategy, m.Confidence)
				if m.Pattern != nil {
					fmt.Fprintf(out, ", pattern %d", m.Pattern.ID)
				}
				fmt.Fprintln(out, ")")
				return nil
			})
		},
	}
}

func newPayeeAutocompleteCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "autocomplete <query>",
		Short: "List payees matching a partial name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				payees, err := a.resolver().Autocomplete(ctx, a.user(), args[0], limit)
				if err != nil {
					return err
				}
				for _, p := range payees {
					fmt.Fprintln(cmd.OutOrStdout(), p.CanonicalName)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results (0 for all)")
	return cmd
}

func newPayeeLearnCommand(a *app) *cobra.Command {
	var typ, domain string

	cmd := &cobra.Command{
		Use:   "learn <payee> <value>",
		Short: "Teach a payee a matching pattern, creating the payee if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt := model.PatternType(typ)
			if !pt.Valid() {
				return fmt.Errorf("unknown pattern type %q", typ)
			}
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				r := a.resolver()
				p, err := r.EnsurePayee(ctx, a.user(), args[0], domain)
				if err != nil {
					return err
				}
				pat, err := r.Learn(ctx, a.user(), p.ID, pt, args[1], model.SourceUserCreated)
				if err != nil {
					return err
				}
				green.Fprintf(cmd.OutOrStdout(), "Pattern %d: %s %q -> %s (confidence %.2f)\n",
					pat.ID, pat.Type, pat.Value, p.CanonicalName, pat.Confidence)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typ, "type", string(model.PatternContains),
		"pattern type: description_contains, description_regex, exact_match, fuzzy_match_base")
	cmd.Flags().StringVar(&domain, "domain", "", "merchant domain used for the payee icon")
	return cmd
}

func newPayeeFeedbackCommand(a *app) *cobra.Command {
	var reject bool

	cmd := &cobra.Command{
		Use:   "feedback <pattern-id>",
		Short: "Accept (default) or reject a pattern match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("pattern id %q: %w", args[0], err)
			}
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				p, err := a.resolver().RecordFeedback(ctx, a.user(), id, !reject)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pattern %d confidence %.2f\n", p.ID, p.Confidence)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reject, "reject", false, "record a rejected match")
	return cmd
}

func newPayeePruneCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-candidates",
		Short: "List patterns whose confidence has reached zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				pats, err := a.resolver().PruneCandidates(ctx, a.user())
				if err != nil {
					return err
				}
				if len(pats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No patterns to prune")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPAYEE\tTYPE\tVALUE")
				for _, p := range pats {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", p.ID, p.PayeeID, p.Type, p.Value)
				}
				return tw.Flush()
			})
		},
	}
}
