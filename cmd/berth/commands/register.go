package commands

import (
	"fmt"

	"github.com/openberth/openberth/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRegisterCommand() *cobra.Command {
	var manifestFile string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register applications from a manifest",
		Long: `Register applications from a manifest file.

The manifest is parsed (CUE, JSON or Starlark, by extension), checked
against the admission policies, and each application is stored in the
Stopped state. Nothing is deployed until the application is started.`,
		Example: `  # Register apps from a CUE manifest
  berth register -f apps.cue

  # Register from JSON against a custom store
  berth --store /var/lib/berth/berth.db register -f apps.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			result, err := config.NewParser().ParseFile(ctx, manifestFile)
			if err != nil {
				return fmt.Errorf("failed to parse manifest: %w", err)
			}
			if !result.OK() {
				return result.Err()
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			for _, manifest := range result.Manifests {
				record := manifest.ToRecord()

				eval, err := rt.policies.EvaluateApp(ctx, &record, "register")
				if err != nil {
					return fmt.Errorf("failed to evaluate policies for %s: %w", record.ID, err)
				}
				if err := reportViolations(record.ID, "register", eval); err != nil {
					return err
				}

				if err := rt.controller.AddApp(ctx, record); err != nil {
					return fmt.Errorf("failed to register %s: %w", record.ID, err)
				}

				log.Info().
					Str("app_id", record.ID).
					Str("instance_config", record.InstanceConfig.ID).
					Str("provider", record.ProviderConfig.ID).
					Msg("Application registered")
				fmt.Printf("registered %s\n", record.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "manifest file path")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
