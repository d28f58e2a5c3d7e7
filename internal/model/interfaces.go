package model

import (
	"context"

	"github.com/harunnryd/odoo-agent/internal/model/contract"
)

// Completer is implemented by every provider SDK wrapper.
type Completer interface {
	Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

// Provider is a Completer registered under a model name.
type Provider interface {
	Completer
	Name() string
	Type() string
}

type ModelRouter interface {
	Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Models() []string
}

// Generator is the language-model capability used by agent roles: a system
// prompt plus the conversation so far in, reply text out.
type Generator interface {
	Generate(ctx context.Context, system string, history []contract.Message) (string, error)
}
