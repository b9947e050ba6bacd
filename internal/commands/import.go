package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/importer"
	"github.com/cleared-dev/ledgerd/internal/ingest"
	"github.com/cleared-dev/ledgerd/internal/model"
)

// importFlags are shared by import and import-dir.
type importFlags struct {
	account         string
	format          string
	mappingName     string
	mapping         importer.ColumnMapping
	retain          bool
	allowDuplicates bool
	learnPayees     bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.account, "account", "", "account ID or name (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&f.format, "format", "", "parser format: csv, chase, ofx, qfx (default: from file extension)")
	cmd.Flags().StringVar(&f.mappingName, "mapping", "", "named column mapping from ledgerd.yaml")
	cmd.Flags().StringVar(&f.mapping.Date, "mapping-date", "", "date column")
	cmd.Flags().StringVar(&f.mapping.Amount, "mapping-amount", "", "signed amount column")
	cmd.Flags().StringVar(&f.mapping.Debit, "mapping-debit", "", "debit column")
	cmd.Flags().StringVar(&f.mapping.Credit, "mapping-credit", "", "credit column")
	cmd.Flags().StringVar(&f.mapping.Description, "mapping-description", "", "description column")
	cmd.Flags().StringVar(&f.mapping.Payee, "mapping-payee", "", "payee column")
	cmd.Flags().StringVar(&f.mapping.Type, "mapping-type", "", "debit/credit type column")
	cmd.Flags().StringVar(&f.mapping.ExternalID, "mapping-external-id", "", "bank transaction ID column")
	cmd.Flags().StringVar(&f.mapping.DateFormat, "mapping-date-format", "", "Go time layout for the date column")
	cmd.Flags().StringVar(&f.mapping.Delimiter, "mapping-delimiter", "", "field delimiter")
	cmd.Flags().BoolVar(&f.mapping.InvertSign, "mapping-invert-sign", false, "positive amounts are outflows")
	cmd.Flags().BoolVar(&f.retain, "retain", false, "keep the original file for reprocessing")
	cmd.Flags().BoolVar(&f.allowDuplicates, "allow-duplicates", false, "import likely duplicates instead of skipping them")
	cmd.Flags().BoolVar(&f.learnPayees, "learn-payees", false, "create payees from unresolved rows")
}

// columnMapping picks the named mapping, then the inline flags.
func (f *importFlags) columnMapping(a *app) (*importer.ColumnMapping, error) {
	if f.mappingName != "" {
		return a.cfg.Mapping(f.mappingName)
	}
	if f.mapping.Date == "" {
		return nil, nil
	}
	m := f.mapping
	return &m, nil
}

func (f *importFlags) options(cmd *cobra.Command, a *app) *ingest.Options {
	opts := ingest.Options{
		RetainOriginal: a.cfg.Import.RetainOriginal,
		SkipDuplicates: a.cfg.Import.SkipDuplicates,
		LearnPayees:    a.cfg.Import.LearnPayees,
	}
	if cmd.Flags().Changed("retain") {
		opts.RetainOriginal = f.retain
	}
	if cmd.Flags().Changed("allow-duplicates") {
		opts.SkipDuplicates = !f.allowDuplicates
	}
	if cmd.Flags().Changed("learn-payees") {
		opts.LearnPayees = f.learnPayees
	}
	return &opts
}

func (f *importFlags) importFile(ctx context.Context, cmd *cobra.Command, a *app, svc *ingest.Service, acct model.Account, path string) (*ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading statement: %w", err)
	}
	mapping, err := f.columnMapping(a)
	if err != nil {
		return nil, err
	}
	return svc.Import(ctx, ingest.Request{
		UserID:    a.user(),
		AccountID: acct.ID,
		Filename:  filepath.Base(path),
		Format:    f.format,
		Data:      data,
		Mapping:   mapping,
		Options:   f.options(cmd, a),
	})
}

func newImportCommand(a *app) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a bank statement into an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				acct, err := a.account(ctx, f.account)
				if err != nil {
					return err
				}
				svc, err := a.ingest()
				if err != nil {
					return err
				}
				res, err := f.importFile(ctx, cmd, a, svc, acct, args[0])
				if err != nil {
					return err
				}
				printImport(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	f.register(cmd)
	return cmd
}

func newImportDirCommand(a *app) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import-dir [directory]",
		Short: "Import every statement waiting in a directory",
		Long: "Import every .csv, .ofx and .qfx file in the directory (default: import/ next to the config file).\n" +
			"Files that import successfully are moved to processed/.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				dir := a.path("import")
				if len(args) > 0 {
					dir = args[0]
				}
				files, err := importer.Scan(dir)
				if err != nil {
					return err
				}
				if len(files) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No statements in %s\n", dir)
					return nil
				}

				acct, err := a.account(ctx, f.account)
				if err != nil {
					return err
				}
				svc, err := a.ingest()
				if err != nil {
					return err
				}

				failed := 0
				for _, file := range files {
					bold.Fprintf(cmd.OutOrStdout(), "%s\n", file.Name)
					res, err := f.importFile(ctx, cmd, a, svc, acct, file.Path)
					if err != nil {
						red.Fprintf(cmd.OutOrStdout(), "  failed: %v\n", err)
						failed++
						continue
					}
					printImport(cmd.OutOrStdout(), res)
					if err := importer.MarkProcessed(dir, file.Name); err != nil {
						return err
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d statements failed", failed, len(files))
				}
				return nil
			})
		},
	}

	f.register(cmd)
	return cmd
}

func printImport(w io.Writer, res *ingest.Result) {
	h := res.Import
	bold.Fprintf(w, "Import %s (%s, %d rows)\n", h.Reference, h.Format, h.TotalRows)
	green.Fprintf(w, "  imported:   %d\n", h.ImportedCount)
	yellow.Fprintf(w, "  duplicates: %d\n", h.DuplicateCount)
	red.Fprintf(w, "  errors:     %d\n", h.ErrorCount)
	for _, r := range res.Rows {
		if r.Status == model.RowError {
			red.Fprintf(w, "    row %d: %s\n", r.RowIndex+1, r.Message)
		}
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				svc, err := a.ingest()
				if err != nil {
					return err
				}
				imports, err := svc.Imports(ctx, a.user())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "REF\tFILE\tSTATUS\tIMPORTED\tDUPLICATES\tERRORS")
				for _, h := range imports {
					status := string(h.Status)
					if h.RolledBack {
						status = "rolled back"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
						h.Reference, h.Filename, status, h.ImportedCount, h.DuplicateCount, h.ErrorCount)
				}
				return tw.Flush()
			})
		},
	}
}

func newRollbackCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <import>",
		Short: "Delete every transaction an import created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				svc, err := a.ingest()
				if err != nil {
					return err
				}
				h, err := svc.Lookup(ctx, a.user(), args[0])
				if err != nil {
					return err
				}
				n, err := svc.Rollback(ctx, a.user(), h.ID)
				if err != nil {
					return err
				}
				yellow.Fprintf(cmd.OutOrStdout(), "Rolled back %s: %d transactions removed\n", h.Reference, n)
				return nil
			})
		},
	}
}

func newReprocessCommand(a *app) *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "reprocess <import>",
		Short: "Re-run a retained import as a new import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), true, func(ctx context.Context) error {
				svc, err := a.ingest()
				if err != nil {
					return err
				}
				h, err := svc.Lookup(ctx, a.user(), args[0])
				if err != nil {
					return err
				}
				mapping, err := f.columnMapping(a)
				if err != nil {
					return err
				}
				res, err := svc.Reprocess(ctx, a.user(), h.ID, mapping)
				if err != nil {
					return err
				}
				printImport(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&f.mappingName, "mapping", "", "named column mapping from ledgerd.yaml")
	cmd.Flags().StringVar(&f.mapping.Date, "mapping-date", "", "date column")
	cmd.Flags().StringVar(&f.mapping.Amount, "mapping-amount", "", "signed amount column")
	cmd.Flags().StringVar(&f.mapping.Description, "mapping-description", "", "description column")
	cmd.Flags().StringVar(&f.mapping.Payee, "mapping-payee", "", "payee column")
	return cmd
}
