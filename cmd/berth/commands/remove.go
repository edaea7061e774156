package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRemoveCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <app-id>",
		Short: "Remove a registered application",
		Long: `Remove an application from the store. A running application is
refused unless --force is given; --force drops the record without
destroying the deployed instance, which keeps running unmanaged.`,
		Example: `  # Remove a stopped application
  berth remove web-frontend

  # Drop a running application's record, leaving its instance behind
  berth remove web-frontend --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.controller.RemoveApp(ctx, id, force); err != nil {
				return fmt.Errorf("failed to remove %s: %w", id, err)
			}

			log.Info().Str("app_id", id).Bool("force", force).Msg("Application removed")
			fmt.Printf("removed %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove even if running, orphaning the instance")

	return cmd
}
