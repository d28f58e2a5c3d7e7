package model

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"
)

// ProviderAdapter binds a provider SDK wrapper to one registry entry and
// bounds each completion by the entry's request timeout.
type ProviderAdapter struct {
	completer Completer
	name      string
	kind      string
	timeout   time.Duration
}

func NewProviderAdapter(completer Completer, name, kind string, timeout time.Duration) *ProviderAdapter {
	return &ProviderAdapter{completer: completer, name: name, kind: kind, timeout: timeout}
}

func (a *ProviderAdapter) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if req.Model == "" {
		req.Model = a.name
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.completer.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, apperrors.WrapWithCategory(err, a.kind+" completion timed out", apperrors.ErrTransient)
		}
		return nil, err
	}
	return resp, nil
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.kind
}
