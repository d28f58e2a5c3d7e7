package odoo

import (
	"context"
	"log/slog"

	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/protocol"
)

// Batch runs cmds one after another and returns one result per command,
// in order. A failed command does not stop the ones after it.
func (c *Client) Batch(ctx context.Context, cmds []protocol.Command) []ExecutionResult {
	results := make([]ExecutionResult, len(cmds))
	failed := 0
	for i, cmd := range cmds {
		results[i] = c.Invoke(ctx, cmd)
		if !results[i].Success {
			failed++
		}
	}
	slog.Info("Odoo batch finished", append(logger.Attrs(ctx),
		"size", len(cmds), "succeeded", len(cmds)-failed, "failed", failed)...)
	return results
}
