package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <app-id>",
		Short: "Destroy an application's instance",
		Long: `Stop an application: its provider destroys the deployed instance
and the stored instance info is removed. The application must be
running; stopping a stopped application fails.`,
		Example: `  berth stop web-frontend`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			app, err := rt.controller.GetApp(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", id, err)
			}

			if err := rt.controller.StopApp(ctx, app); err != nil {
				return fmt.Errorf("failed to stop %s: %w", id, err)
			}

			log.Info().Str("app_id", id).Msg("Application stopped")
			fmt.Printf("stopped %s\n", id)
			return nil
		},
	}

	return cmd
}
