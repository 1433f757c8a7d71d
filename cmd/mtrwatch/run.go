package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mtrwatch/internal/admin"
	"mtrwatch/internal/config"
	"mtrwatch/internal/lock"
	"mtrwatch/internal/logging"
	"mtrwatch/internal/metrics"
	"mtrwatch/internal/supervisor"
)

var (
	runSettingsPath string
	runSchemaPath   string
	runLogFile      string
	runListen       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor with one monitor per configured target",
	Long:  "run reconciles one monitor worker per active target and restarts all workers when the settings file changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(runSettingsPath, runSchemaPath)
		if err != nil {
			return exitWith(exitSettings, fmt.Errorf("load settings: %w", err))
		}

		log := logging.New(settings.Logging.Level)

		wl, err := lock.Acquire(lockPath(settings))
		if err != nil {
			if errors.Is(err, lock.ErrHeld) {
				return exitWith(exitLockHeld, err)
			}
			return err
		}
		defer wl.Release()

		registry := prometheus.NewRegistry()
		if err := metrics.Register(registry); err != nil {
			return err
		}

		export, cleanup, err := newExportWriter(settings, runLogFile, log)
		if err != nil {
			return err
		}
		defer cleanup()

		st := newStore(settings)
		sup := supervisor.New(runSettingsPath, runSchemaPath, settings, newWorkerFunc(st, export, log))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		listen := runListen
		if listen == "" {
			listen = settings.AdminListen
		}
		if listen != "" {
			srv := admin.NewServer(sup, registry)
			go func() {
				log.Info("admin server listening", "addr", listen)
				if err := srv.Start(ctx, listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", "err", err)
				}
			}()
		}

		sup.Run(ctx)
		log.Info("shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runSettingsPath, "settings", "mtr_script_settings.yaml", "Path to the settings YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "", "Optional CUE schema to validate settings against")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export per-hop rows (JSONL)")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Admin listen address (overrides settings admin_listen)")
}
