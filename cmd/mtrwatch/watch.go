package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mtrwatch/internal/config"
	"mtrwatch/internal/lock"
	"mtrwatch/internal/logging"
)

var (
	watchSettingsPath string
	watchSchemaPath   string
	watchTarget       string
	watchSource       string
	watchLogFile      string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor a single target in the foreground",
	Long:  "watch runs one monitoring loop for a single target, holding the single-writer lock over the trace artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(watchSettingsPath, watchSchemaPath)
		if err != nil {
			return exitWith(exitSettings, fmt.Errorf("load settings: %w", err))
		}

		log := logging.New(settings.Logging.Level)

		target, err := resolveTarget(settings, log)
		if err != nil {
			return exitWith(exitNoTarget, err)
		}

		wl, err := lock.Acquire(lockPath(settings))
		if err != nil {
			if errors.Is(err, lock.ErrHeld) {
				return exitWith(exitLockHeld, err)
			}
			return err
		}
		defer wl.Release()

		export, cleanup, err := newExportWriter(settings, watchLogFile, log)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		runMonitor(ctx, target, settings, newStore(settings), export, log)
		log.Info("stopped", "target", target.IP)
		return nil
	},
}

// resolveTarget picks the monitor entrypoint: the --target flag, enriched
// with source/description from the targets file when the entry exists there.
func resolveTarget(s *config.Settings, log *slog.Logger) (config.Target, error) {
	if watchTarget == "" {
		return config.Target{}, errors.New("no monitor entrypoint resolvable: --target is required")
	}
	target := config.Target{IP: watchTarget, SourceIP: watchSource}
	known, err := config.LoadTargets(s.TargetsFile, log)
	if err != nil {
		return target, nil // targets file is optional for watch mode
	}
	for _, t := range known {
		if t.IP == watchTarget {
			if target.SourceIP == "" {
				target.SourceIP = t.SourceIP
			}
			target.Description = t.Description
			break
		}
	}
	return target, nil
}

func init() {
	watchCmd.Flags().StringVar(&watchSettingsPath, "settings", "mtr_script_settings.yaml", "Path to the settings YAML")
	watchCmd.Flags().StringVar(&watchSchemaPath, "schema", "", "Optional CUE schema to validate settings against")
	watchCmd.Flags().StringVar(&watchTarget, "target", "", "Destination host/IP to monitor")
	watchCmd.Flags().StringVar(&watchSource, "source", "", "Optional source IP address to bind")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Path to export per-hop rows (JSONL)")
}
