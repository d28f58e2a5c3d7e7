package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/metrics"
	"github.com/harunnryd/odoo-agent/internal/model/contract"
	anthropicProvider "github.com/harunnryd/odoo-agent/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/odoo-agent/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/odoo-agent/internal/model/providers/openai"
)

// DefaultModelRouter sends completions to the registry entry named by the
// request and reroutes a failed completion to the fallback model.
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	metrics   *metrics.Metrics
	providers map[string]Provider
	mu        sync.RWMutex
}

type RouterOption func(*DefaultModelRouter)

func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *DefaultModelRouter) {
		r.metrics = m
	}
}

// NewModelRouter builds a provider per registry entry. Entries that cannot
// be built, usually for a missing API key, are skipped with a warning; it
// fails only when none could be built.
func NewModelRouter(cfg config.ModelsConfig, opts ...RouterOption) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(router)
	}

	for _, entry := range cfg.Registry {
		provider, err := createProvider(entry)
		if err != nil {
			slog.Warn("Skipping model provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}
		router.providers[entry.Name] = provider
		slog.Debug("Model provider ready", "model", entry.Name, "type", entry.Provider)
	}

	if len(router.providers) == 0 && len(cfg.Registry) > 0 {
		return nil, apperrors.Internal("no model provider could be initialized")
	}
	return router, nil
}

// Register adds or replaces the provider serving name.
func (r *DefaultModelRouter) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Models returns the registered model names, sorted.
func (r *DefaultModelRouter) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)
	return models
}

func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if model == "" {
		model = r.cfg.Default
	}

	candidates, err := r.candidates(model)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, "completion cancelled")
		}
		if i > 0 {
			slog.Info("Falling back to another model", append(logger.Attrs(ctx), "from", candidates[i-1].name, "to", c.name)...)
			r.metrics.IncModelFallback(candidates[i-1].name, c.name)
		}

		req.Model = c.name
		start := time.Now()
		resp, err := c.provider.Complete(ctx, req)
		elapsed := time.Since(start)
		if err == nil {
			if resp.Model == "" {
				resp.Model = c.name
			}
			r.metrics.ObserveModelCall(c.name, "ok", elapsed)
			slog.Info("Model completion finished", append(logger.Attrs(ctx), "model", c.name, "elapsed", elapsed)...)
			return resp, nil
		}

		r.metrics.ObserveModelCall(c.name, "error", elapsed)
		slog.Error("Model completion failed", append(logger.Attrs(ctx), "model", c.name, "error", err)...)
		lastErr = err
	}

	if errors.Is(lastErr, apperrors.ErrTransient) {
		return nil, apperrors.Wrap(lastErr, "model request failed")
	}
	return nil, apperrors.WrapWithCategory(lastErr, "model request failed", apperrors.ErrInternal)
}

type candidate struct {
	name     string
	provider Provider
}

// candidates lists the requested model followed by the fallback, capped at
// MaxFallbackAttempts. An unknown model goes straight to the fallback.
func (r *DefaultModelRouter) candidates(model string) ([]candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []candidate
	if p, ok := r.providers[model]; ok {
		out = append(out, candidate{name: model, provider: p})
	} else {
		slog.Warn("Model not registered", "model", model)
	}
	if fb := r.cfg.Fallback; fb != "" && fb != model {
		if p, ok := r.providers[fb]; ok {
			out = append(out, candidate{name: fb, provider: p})
		}
	}
	if len(out) == 0 {
		return nil, apperrors.NotFound(fmt.Sprintf("model %s not found", model))
	}

	limit := r.cfg.MaxFallbackAttempts
	if limit <= 0 {
		limit = config.DefaultModelMaxFallbackAttempts
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func createProvider(entry config.ModelRegistry) (Provider, error) {
	timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid request_timeout for model %s: %v", entry.Name, err))
	}

	var completer Completer
	switch entry.Provider {
	case "openai":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for OpenAI provider")
		}
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}
		completer = openaiProvider.New(entry.APIKey, baseURL)

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}
		completer = openaiProvider.New(apiKey, baseURL)

	case "anthropic":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Anthropic provider")
		}
		completer = anthropicProvider.New(entry.APIKey, entry.BaseURL)

	case "gemini":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Gemini provider")
		}
		p, err := geminiProvider.New(entry.APIKey)
		if err != nil {
			return nil, apperrors.WrapWithCategory(err, "failed to create Gemini provider", apperrors.ErrInternal)
		}
		completer = p

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported provider type: %s", entry.Provider))
	}

	return NewProviderAdapter(completer, entry.Name, entry.Provider, timeout), nil
}
