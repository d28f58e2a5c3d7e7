package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/harunnryd/odoo-agent/cmd/odooagent/runtime"
	"github.com/harunnryd/odoo-agent/internal/formatter"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/protocol"

	"github.com/spf13/cobra"
)

type pinger interface {
	Version(ctx context.Context) (map[string]interface{}, error)
	Connect(ctx context.Context) (int64, error)
}

type modelLister interface {
	ListModels(ctx context.Context, nameFilter string) ([]odoo.ModelInfo, error)
	ModelFields(ctx context.Context, model string) (map[string]interface{}, error)
}

var odooCmd = &cobra.Command{
	Use:   "odoo",
	Short: "Inspect and call the Odoo server directly",
}

var odooPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the server version and the configured credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			return runPing(ctx, r.Client, cmd.OutOrStdout())
		})
	},
}

var odooModelsCmd = &cobra.Command{
	Use:   "models [filter]",
	Short: "List models, optionally filtered by technical name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		filter := ""
		if len(args) == 1 {
			filter = args[0]
		}
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			return runModels(ctx, r.Client, filter, format, cmd.OutOrStdout())
		})
	},
}

var odooFieldsCmd = &cobra.Command{
	Use:   "fields <model>",
	Short: "Describe the fields of a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			return runFields(ctx, r.Client, args[0], format, cmd.OutOrStdout())
		})
	},
}

var odooExecCmd = &cobra.Command{
	Use:     "exec <command-json>",
	Short:   "Validate and run one database operation",
	Example: `  odooagent odoo exec '{"model": "res.partner", "method": "search_read", "args": [[]], "kwargs": {"limit": 5}}'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			return runExec(ctx, r.Client, args[0], cmd.OutOrStdout())
		})
	},
}

func outputFormat(cmd *cobra.Command) (formatter.OutputFormat, error) {
	value, _ := cmd.Flags().GetString("output")
	return formatter.ParseOutputFormat(value)
}

func runPing(ctx context.Context, p pinger, out io.Writer) error {
	version, err := p.Version(ctx)
	if err != nil {
		return fmt.Errorf("odoo unreachable: %w", err)
	}
	fmt.Fprintf(out, "Server version: %v\n", version["server_version"])

	uid, err := p.Connect(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Fprintf(out, "✓ Authenticated as uid %d\n", uid)
	return nil
}

func runModels(ctx context.Context, l modelLister, filter string, format formatter.OutputFormat, out io.Writer) error {
	models, err := l.ListModels(ctx, filter)
	if err != nil {
		return err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Model < models[j].Model })

	f, err := formatter.NewFormatterFactory().Create(format)
	if err != nil {
		return err
	}
	text, err := f.FormatModels(models)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}

func runFields(ctx context.Context, l modelLister, model string, format formatter.OutputFormat, out io.Writer) error {
	fields, err := l.ModelFields(ctx, model)
	if err != nil {
		return err
	}

	f, err := formatter.NewFormatterFactory().Create(format)
	if err != nil {
		return err
	}
	text, err := f.FormatFields(model, fields)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}

// runExec prints the execution result as JSON and returns its error, if any.
func runExec(ctx context.Context, invoker odoo.Invoker, payload string, out io.Writer) error {
	command, err := protocol.Validate(payload)
	if err != nil {
		return err
	}

	res := invoker.Invoke(ctx, command)
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return res.Err()
}

func init() {
	odooModelsCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	odooFieldsCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")

	odooCmd.AddCommand(odooPingCmd)
	odooCmd.AddCommand(odooModelsCmd)
	odooCmd.AddCommand(odooFieldsCmd)
	odooCmd.AddCommand(odooExecCmd)
	rootCmd.AddCommand(odooCmd)
}
