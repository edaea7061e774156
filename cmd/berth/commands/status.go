package commands

import (
	"fmt"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "status <app-id>",
		Short: "Show the state of an application",
		Long: `Show the stored record and deployment state of one application.

With --refresh the provider is asked for the instance's current status
and the live status is shown in place of the stored snapshot. The
stored record is not modified. Refresh requires the application to be
running.`,
		Example: `  # Stored state
  berth status web-frontend

  # Ask the provider first
  berth status web-frontend --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			var refreshed *engine.InstanceInfo
			if refresh {
				refreshed, err = rt.controller.RefreshInstanceInfo(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to refresh %s: %w", id, err)
				}
			}

			app, err := rt.controller.GetApp(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", id, err)
			}
			if refreshed != nil {
				app.InstanceInfo = refreshed
			}

			if jsonOutput {
				return printJSON(app)
			}

			fmt.Printf("id:              %s\n", app.ID)
			fmt.Printf("instance config: %s\n", app.InstanceConfig.ID)
			fmt.Printf("provider:        %s\n", app.ProviderConfig.ID)
			fmt.Printf("state:           %s\n", appStatusWord(app))
			if app.Running() {
				fmt.Printf("instance ref:    %s\n", string(app.InstanceInfo.Ref))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "query the provider before display")

	return cmd
}
