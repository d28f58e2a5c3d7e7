package model

import (
	"context"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"
)

// RouterGenerator exposes a ModelRouter as a Generator bound to one model.
type RouterGenerator struct {
	router    ModelRouter
	model     string
	maxTokens int
}

func NewRouterGenerator(router ModelRouter, model string, maxTokens int) *RouterGenerator {
	return &RouterGenerator{router: router, model: model, maxTokens: maxTokens}
}

func (g *RouterGenerator) Generate(ctx context.Context, system string, history []contract.Message) (string, error) {
	if len(history) == 0 {
		return "", apperrors.InvalidInput("history must contain at least one message")
	}

	resp, err := g.router.Route(ctx, g.model, contract.CompletionRequest{
		System:    system,
		Messages:  mergeTurns(history),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// mergeTurns folds consecutive messages of the same role into one so
// providers that require alternating turns accept the history.
func mergeTurns(history []contract.Message) []contract.Message {
	out := make([]contract.Message, 0, len(history))
	for _, m := range history {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = strings.TrimRight(out[n-1].Content, "\n") + "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
