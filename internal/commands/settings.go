package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSettingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change ledger settings",
	}
	cmd.AddCommand(newSettingsIconsCommand(a))
	return cmd
}

func newSettingsIconsCommand(a *app) *cobra.Command {
	var name, template string
	var size int

	cmd := &cobra.Command{
		Use:   "icons",
		Short: "Show the payee icon provider, or set it with --name and --url-template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			update := cmd.Flags().Changed("name") || cmd.Flags().Changed("url-template") || cmd.Flags().Changed("size")
			return a.run(cmd.Context(), false, func(ctx context.Context) error {
				p, err := a.settings.IconProvider(ctx)
				if err != nil {
					return err
				}
				if update {
					if cmd.Flags().Changed("name") {
						p.Name = name
					}
					if cmd.Flags().Changed("url-template") {
						p.URLTemplate = template
					}
					if cmd.Flags().Changed("size") {
						p.Size = size
					}
					if err := a.settings.UpdateIconProvider(ctx, p); err != nil {
						return err
					}
					green.Fprintln(cmd.OutOrStdout(), "Icon provider updated")
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "name:         %s\n", p.Name)
				fmt.Fprintf(out, "url_template: %s\n", p.URLTemplate)
				fmt.Fprintf(out, "size:         %d\n", p.Size)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "provider name")
	cmd.Flags().StringVar(&template, "url-template", "", "URL template containing {domain} and optionally {size}")
	cmd.Flags().IntVar(&size, "size", 0, "icon size substituted for {size}")
	return cmd
}
