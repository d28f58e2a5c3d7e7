package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harunnryd/odoo-agent/cmd/odooagent/runtime"
	"github.com/harunnryd/odoo-agent/internal/agent"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent in an interactive session",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		sessionID, _ := cmd.Flags().GetString("session")

		if role != "" {
			if _, err := agent.ParseKind(role); err != nil {
				return err
			}
		}

		return executeWithRuntime(cmd, func(ctx context.Context, r *runtime.RuntimeComponents) error {
			if r.Sweeper != nil {
				if err := r.Sweeper.Start(); err != nil {
					return fmt.Errorf("failed to start rate limit sweeper: %w", err)
				}
				defer r.Sweeper.Stop(context.Background())
			}

			repl := runtime.NewREPL(r.Orchestrator, r.Sessions, sessionID, role, os.Stdin, os.Stdout)
			return repl.Start(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("role", "r", "", "Role answering the session (main, sales, crm)")
	chatCmd.Flags().StringP("session", "s", "", "Session ID to open")
}
