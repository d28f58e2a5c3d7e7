package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/odoo-agent/cmd/odooagent/runtime"
	"github.com/harunnryd/odoo-agent/internal/config"
	"github.com/harunnryd/odoo-agent/internal/daemon"
	"github.com/harunnryd/odoo-agent/internal/daemon/components"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	Short:   "Start the HTTP API as a long-running service",
	Long:    `Starts Odoo Agent using component lifecycle orchestration. It connects to Odoo, exposes the JSON API with health and metrics endpoints, and sweeps stale rate-limit windows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		rt, err := runtime.NewRuntimeBuilder().WithConfig(cfg).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize runtime: %w", err)
		}
		defer rt.Close()

		daemonMgr, err := newDaemon(cfg, rt)
		if err != nil {
			return err
		}

		slog.Info("Odoo Agent starting up...", "port", cfg.Server.Port, "odoo_url", cfg.Odoo.URL, "database", cfg.Odoo.Database)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Odoo Agent stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Odoo Agent stopped gracefully")
		return nil
	},
}

// newDaemon registers the remote store, the rate-limit sweeper and the
// HTTP server on a daemon named after the Odoo database.
func newDaemon(cfg *config.Config, rt *runtime.RuntimeComponents) (*daemon.Daemon, error) {
	daemonMgr, err := daemon.NewDaemon(cfg.Odoo.Database, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon manager: %w", err)
	}

	connectTimeout, err := config.DurationOrDefault(cfg.Odoo.ConnectTimeout, config.DefaultOdooConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse odoo connect timeout: %w", err)
	}

	var sweeper components.Sweeper
	if rt.Sweeper != nil {
		sweeper = rt.Sweeper
	}

	daemonMgr.AddComponent(components.NewRemoteStoreComponent(rt.Client, rt.TransportCloser(), cfg.Odoo.URL, connectTimeout))
	daemonMgr.AddComponent(components.NewRateLimitSweeperComponent(sweeper))
	daemonMgr.AddComponent(components.NewHTTPServerComponent(daemonMgr, &cfg.Server, rt.API.Handler(), rt.Registry))
	return daemonMgr, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
