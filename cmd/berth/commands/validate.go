package commands

import (
	"fmt"

	"github.com/openberth/openberth/pkg/config"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var manifestFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a manifest without registering anything",
		Long: `Validate a manifest file.

Each application's manifest structure is checked, then its instance
config is run through the named mapper to prove it would produce a
bootstrap payload. Nothing is stored and nothing is deployed. Provider
configs are only checked for a known provider id at start time, so an
unknown provider id passes validation.`,
		Example: `  berth validate -f apps.cue`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			result, err := config.NewParser().ParseFile(ctx, manifestFile)
			if err != nil {
				return fmt.Errorf("failed to parse manifest: %w", err)
			}
			if !result.OK() {
				return result.Err()
			}

			mappers := newInstanceConfigRegistry()
			failures := 0
			for _, manifest := range result.Manifests {
				m, err := mappers.Get(manifest.Instance.ID)
				if err != nil {
					fmt.Printf("FAIL %s: unknown instance config %q\n", manifest.ID, manifest.Instance.ID)
					failures++
					continue
				}
				if _, err := m.ValidateAndMap(ctx, manifest.Instance.Config); err != nil {
					fmt.Printf("FAIL %s: %v\n", manifest.ID, err)
					failures++
					continue
				}
				fmt.Printf("OK   %s\n", manifest.ID)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d application(s) failed validation", failures, len(result.Manifests))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "manifest file path")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
