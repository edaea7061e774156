package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <app-id>",
		Short: "Deploy an application's instance",
		Long: `Start an application: its instance-config mapper produces the
bootstrap payload and its provider deploys an instance. The application
must be stopped; starting a running application fails.`,
		Example: `  berth start web-frontend`,
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

			if err := rt.controller.StartApp(ctx, app); err != nil {
				return fmt.Errorf("failed to start %s: %w", id, err)
			}

			log.Info().Str("app_id", id).Msg("Application started")
			fmt.Printf("started %s\n", id)
			return nil
		},
	}

	return cmd
}
