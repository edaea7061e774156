package commands

import (
	"fmt"

	"github.com/openberth/openberth/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newUpdateCommand() *cobra.Command {
	var manifestFile string

	cmd := &cobra.Command{
		Use:   "update <app-id>",
		Short: "Replace an application's configuration",
		Long: `Update a registered application from a manifest file. The manifest
must contain an entry for the given application id. The application
must be stopped; a running application's configuration is immutable.`,
		Example: `  berth update web-frontend -f apps.cue`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			result, err := config.NewParser().ParseFile(ctx, manifestFile)
			if err != nil {
				return fmt.Errorf("failed to parse manifest: %w", err)
			}
			if !result.OK() {
				return result.Err()
			}

			var manifest *config.AppManifest
			for i := range result.Manifests {
				if result.Manifests[i].ID == id {
					manifest = &result.Manifests[i]
					break
				}
			}
			if manifest == nil {
				return fmt.Errorf("manifest %s has no application %s", manifestFile, id)
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			record := manifest.ToRecord()

			eval, err := rt.policies.EvaluateApp(ctx, &record, "update")
			if err != nil {
				return fmt.Errorf("failed to evaluate policies for %s: %w", id, err)
			}
			if err := reportViolations(id, "update", eval); err != nil {
				return err
			}

			if err := rt.controller.UpdateApp(ctx, id, record); err != nil {
				return fmt.Errorf("failed to update %s: %w", id, err)
			}

			log.Info().
				Str("app_id", id).
				Str("instance_config", record.InstanceConfig.ID).
				Str("provider", record.ProviderConfig.ID).
				Msg("Application updated")
			fmt.Printf("updated %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "manifest file path")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
