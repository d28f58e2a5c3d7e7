package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/odoo-agent/cmd/odooagent/runtime"
	"github.com/harunnryd/odoo-agent/internal/config"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(context.Context, *runtime.RuntimeComponents) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	signals := NewSignalHandler(context.Background())
	signals.Start()
	defer signals.Stop()

	components, err := runtime.NewRuntimeBuilder().
		WithContext(signals.Context()).
		WithConfig(loadedCfg).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Close()

	return fn(signals.Context(), components)
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.Load(cmd)
}
