package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgerd/internal/config"
)

const configFile = "ledgerd.yaml"

func newInitCommand() *cobra.Command {
	var skipDefaults bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, absDir, skipDefaults)
		},
	}

	cmd.Flags().BoolVar(&skipDefaults, "skip-defaults", false, "do not create the starter accounts and categories")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, skipDefaults bool) error {
	cfgPath := filepath.Join(dir, configFile)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	// Create directory structure.
	for _, d := range []string{"import", filepath.Join("import", "processed"), "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg := config.Default()
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	a := &app{cfgPath: cfgPath}
	err := a.run(cmd.Context(), true, func(ctx context.Context) error {
		if skipDefaults {
			return nil
		}
		_, err := a.accounts().SeedDefaults(ctx, a.user())
		return err
	})
	if err != nil {
		return err
	}

	green.Fprintf(cmd.OutOrStdout(), "Initialized ledger at %s\n", dir)
	return nil
}
