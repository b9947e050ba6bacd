package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "ledgerd",
		Short:   "Personal finance ledger: statement import, payees and reconciliation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "ledgerd.yaml", "path to ledgerd.yaml")

	rootCmd.AddCommand(
		newInitCommand(),
		newAccountCommand(a),
		newImportCommand(a),
		newImportDirCommand(a),
		newHistoryCommand(a),
		newRollbackCommand(a),
		newReprocessCommand(a),
		newBalanceCommand(a),
		newReconcileCommand(a),
		newRegisterCommand(a),
		newSuggestCommand(a),
		newPayeeCommand(a),
		newSettingsCommand(a),
	)

	return rootCmd
}
