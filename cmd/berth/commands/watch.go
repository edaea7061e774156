package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openberth/openberth/pkg/config"
	"github.com/openberth/openberth/pkg/engine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces the event bursts editors produce on save.
const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a manifest directory and register changes",
		Long: `Watch a directory of manifest files (.cue, .json, .star).

Existing manifests are processed on startup, then every created or
modified manifest is parsed and its applications registered, or updated
when they already exist. A running application's update is refused and
logged; it is retried the next time the file changes. Runs until
interrupted.`,
		Example: `  berth watch -d ./manifests`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", dir, err)
			}
			for _, entry := range entries {
				if entry.IsDir() || !isManifestFile(entry.Name()) {
					continue
				}
				applyManifestFile(ctx, rt, filepath.Join(dir, entry.Name()))
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}

			log.Info().Str("dir", dir).Msg("Watching manifest directory")

			var mu sync.Mutex
			pending := make(map[string]*time.Timer)

			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
						continue
					}
					if !isManifestFile(event.Name) {
						continue
					}

					path := event.Name
					mu.Lock()
					if timer, exists := pending[path]; exists {
						timer.Stop()
					}
					pending[path] = time.AfterFunc(watchDebounce, func() {
						mu.Lock()
						delete(pending, path)
						mu.Unlock()
						applyManifestFile(ctx, rt, path)
					})
					mu.Unlock()

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "manifest directory to watch")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

func isManifestFile(path string) bool {
	switch filepath.Ext(path) {
	case ".cue", ".json", ".star":
		return true
	}
	return false
}

// applyManifestFile parses one manifest file and registers or updates
// every application in it. Failures are logged, never fatal: the watch
// loop outlives any one broken file.
func applyManifestFile(ctx context.Context, rt *runtime, path string) {
	result, err := config.NewParser().ParseFile(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to parse manifest")
		return
	}
	if !result.OK() {
		log.Warn().Err(result.Err()).Str("file", path).Msg("Invalid manifest")
		return
	}

	for _, manifest := range result.Manifests {
		record := manifest.ToRecord()

		_, err := rt.controller.GetApp(ctx, record.ID)
		operation := "update"
		if engine.IsNotFound(err) {
			operation = "register"
		} else if err != nil {
			log.Warn().Err(err).Str("app_id", record.ID).Msg("Failed to look up application")
			continue
		}

		eval, err := rt.policies.EvaluateApp(ctx, &record, operation)
		if err != nil {
			log.Warn().Err(err).Str("app_id", record.ID).Msg("Policy evaluation failed")
			continue
		}
		if !eval.Allowed {
			for _, v := range eval.Denials() {
				log.Warn().
					Str("app_id", record.ID).
					Str("policy", v.Policy).
					Str("message", v.Message).
					Msg("Application denied by policy")
			}
			continue
		}

		if operation == "register" {
			err = rt.controller.AddApp(ctx, record)
		} else {
			err = rt.controller.UpdateApp(ctx, record.ID, record)
		}
		if err != nil {
			log.Warn().Err(err).Str("app_id", record.ID).Str("operation", operation).
				Msg("Failed to apply manifest")
			continue
		}

		log.Info().Str("app_id", record.ID).Str("operation", operation).
			Str("file", path).Msg("Manifest applied")
	}
}
