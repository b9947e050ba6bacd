package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/ingest"
)

func newSuggestCommand(a *app) *cobra.Command {
	var (
		minOccurrences int
		minConfidence  float64
		accept         []int
		category       string
	)

	cmd := &cobra.Command{
		Use:   "suggest <import>",
		Short: "Suggest categorization rules from an import",
		Long: "Group the rows of an import by merchant and propose payee rules.\n" +
			"Pass --accept with suggestion numbers to create the payees, patterns and rules.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), len(accept) > 0, func(ctx context.Context) error {
				svc, err := a.ingest()
				if err != nil {
					return err
				}
				h, err := svc.Lookup(ctx, a.user(), args[0])
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("min-occurrences") {
					minOccurrences = a.cfg.Suggest.MinOccurrences
				}
				if !cmd.Flags().Changed("min-confidence") {
					minConfidence = a.cfg.Suggest.MinConfidence
				}
				suggestions, err := svc.SuggestRules(ctx, a.user(), h.ID, minOccurrences, minConfidence)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(suggestions) == 0 {
					fmt.Fprintln(out, "No suggestions")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tNAME\tPATTERN\tROWS\tCONFIDENCE\tSOURCE\tCATEGORY")
				for i, sg := range suggestions {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
						i+1, sg.Name, sg.PayeePattern, len(sg.MatchingRowIndices), sg.Confidence, sg.Source, sg.CategoryHint)
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				for _, n := range accept {
					if n < 1 || n > len(suggestions) {
						return fmt.Errorf("no suggestion #%d", n)
					}
					res, err := svc.AcceptSuggestion(ctx, a.user(), ingest.AcceptRequest{
						Suggestion:   suggestions[n-1],
						CategoryName: category,
						ImportID:     h.ID,
					})
					if err != nil {
						return err
					}
					green.Fprintf(out, "Accepted #%d: rule %d for %s (%d rows updated)\n",
						n, res.Rule.ID, res.Payee.CanonicalName, res.Updated)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&minOccurrences, "min-occurrences", 3, "rows a generic pattern needs")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0.6, "lowest confidence shown")
	cmd.Flags().IntSliceVar(&accept, "accept", nil, "suggestion numbers to accept")
	cmd.Flags().StringVar(&category, "category", "", "category for accepted suggestions (default: the suggestion's hint)")
	return cmd
}
