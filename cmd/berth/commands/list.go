package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered applications",
		Long: `List every registered application with its instance-config,
provider and current lifecycle state.`,
		Example: `  # Human-readable table
  berth list

  # Full records as JSON
  berth list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			apps, err := rt.controller.ListApps(ctx)
			if err != nil {
				return fmt.Errorf("failed to list applications: %w", err)
			}

			if jsonOutput {
				return printJSON(apps)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tINSTANCE CONFIG\tPROVIDER\tSTATE")
			for i := range apps {
				app := &apps[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					app.ID, app.InstanceConfig.ID, app.ProviderConfig.ID, appStatusWord(app))
			}
			return w.Flush()
		},
	}

	return cmd
}
