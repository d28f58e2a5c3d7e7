package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harunnryd/odoo-agent/internal/agent"
	"github.com/harunnryd/odoo-agent/internal/config"
	"github.com/harunnryd/odoo-agent/internal/ingress"
	"github.com/harunnryd/odoo-agent/internal/metrics"
	"github.com/harunnryd/odoo-agent/internal/model"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/orchestrator"
	"github.com/harunnryd/odoo-agent/internal/ratelimit"
	"github.com/harunnryd/odoo-agent/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithGenerator(g model.Generator) RuntimeBuilder
	WithTransport(t odoo.Transport) RuntimeBuilder
	Build() (*RuntimeComponents, error)
}

type DefaultRuntimeBuilder struct {
	ctx       context.Context
	cfg       *config.Config
	generator model.Generator
	transport odoo.Transport
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

// WithGenerator replaces the model router built from the models section.
func (b *DefaultRuntimeBuilder) WithGenerator(g model.Generator) RuntimeBuilder {
	b.generator = g
	return b
}

// WithTransport replaces the XML-RPC transport built from the odoo section.
func (b *DefaultRuntimeBuilder) WithTransport(t odoo.Transport) RuntimeBuilder {
	b.transport = t
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*RuntimeComponents, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return newRuntimeComponents(b.ctx, b.cfg, b.generator, b.transport)
}

// RuntimeComponents is the wired object graph shared by the serve, chat
// and odoo commands.
type RuntimeComponents struct {
	Ctx          context.Context
	Config       *config.Config
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Client       *odoo.Client
	Limiter      ratelimit.Limiter
	Sweeper      *ratelimit.Sweeper
	Sessions     *session.Store
	Roles        *agent.Registry
	Orchestrator *orchestrator.Orchestrator
	API          *ingress.Server

	transport io.Closer
}

func newRuntimeComponents(ctx context.Context, cfg *config.Config, generator model.Generator, transport odoo.Transport) (*RuntimeComponents, error) {
	rc := &RuntimeComponents{Ctx: ctx, Config: cfg}

	rc.Registry = prometheus.NewRegistry()
	rc.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rc.Metrics = metrics.MustNew(rc.Registry)

	if generator == nil {
		router, err := model.NewModelRouter(cfg.Models, model.WithMetrics(rc.Metrics))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize model router: %w", err)
		}
		slog.Info("Model router ready", "models", router.Models(), "default", cfg.Models.Default, "fallback", cfg.Models.Fallback)
		generator = model.NewRouterGenerator(router, cfg.Models.Default, cfg.Models.MaxTokens)
	}
	rc.Roles = agent.NewRegistry(cfg.Agents.Prompts, generator)

	client, closer, err := buildClient(cfg, transport, rc.Metrics)
	if err != nil {
		return nil, err
	}
	rc.Client = client
	rc.transport = closer

	if err := rc.buildLimiter(); err != nil {
		rc.Close()
		return nil, err
	}

	rc.Sessions = session.NewStore(cfg.Agents.Greeting)
	rc.Orchestrator = orchestrator.New(rc.Sessions, rc.Roles, rc.Client, rc.Limiter,
		orchestrator.WithMetrics(rc.Metrics),
		orchestrator.WithHistoryLimit(cfg.Agents.HistoryLimit),
	)

	requestTimeout, err := config.DurationOrDefault(cfg.Server.RequestTimeout, config.DefaultServerRequestTimeout)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("parse server request timeout: %w", err)
	}
	rc.API = ingress.NewServer(rc.Orchestrator, rc.Sessions, rc.Client, ingress.Options{
		APIKeys:        cfg.Server.APIKeys,
		RequestTimeout: requestTimeout,
		Limiter:        rc.Limiter,
		Metrics:        rc.Metrics,
	})

	slog.Debug("Runtime components built",
		"odoo_url", cfg.Odoo.URL,
		"database", cfg.Odoo.Database,
		"rate_limit", cfg.RateLimit.Enabled,
		"cache", cfg.Cache.Enabled)
	return rc, nil
}

// buildClient returns the closer of the transport it created, or nil when
// the transport was injected.
func buildClient(cfg *config.Config, transport odoo.Transport, m *metrics.Metrics) (*odoo.Client, io.Closer, error) {
	callTimeout, err := config.DurationOrDefault(cfg.Odoo.CallTimeout, config.DefaultOdooCallTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("parse odoo call timeout: %w", err)
	}

	var closer io.Closer
	if transport == nil {
		connectTimeout, err := config.DurationOrDefault(cfg.Odoo.ConnectTimeout, config.DefaultOdooConnectTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("parse odoo connect timeout: %w", err)
		}
		rpc, err := odoo.NewXMLRPCTransport(cfg.Odoo.URL, connectTimeout, callTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create odoo transport: %w", err)
		}
		transport, closer = rpc, rpc
	}

	policy, err := cfg.Retry.Policy()
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, nil, err
	}
	retrier := odoo.NewRetrier(policy, odoo.WithRetryHook(func(attempt int, delay time.Duration, err error) {
		slog.Warn("Retrying remote call", "attempt", attempt, "delay", delay, "error", err)
	}))

	opts := []odoo.Option{odoo.WithRetrier(retrier), odoo.WithMetrics(m)}
	if cfg.Cache.Enabled {
		ttl, err := config.DurationOrDefault(cfg.Cache.TTL, config.DefaultCacheTTL)
		if err != nil {
			if closer != nil {
				closer.Close()
			}
			return nil, nil, fmt.Errorf("parse cache ttl: %w", err)
		}
		opts = append(opts, odoo.WithCache(odoo.NewReadCache(cfg.Cache.Size, ttl)))
	}

	client := odoo.NewClient(transport, odoo.Settings{
		Database:       cfg.Odoo.Database,
		Username:       cfg.Odoo.Username,
		Password:       cfg.Odoo.Password,
		CallTimeout:    callTimeout,
		AllowedMethods: cfg.Commands.AllowedMethods,
	}, opts...)
	return client, closer, nil
}

func (rc *RuntimeComponents) buildLimiter() error {
	if !rc.Config.RateLimit.Enabled {
		rc.Limiter = ratelimit.Unlimited{}
		return nil
	}

	window, err := rc.Config.RateLimit.WindowDuration()
	if err != nil {
		return err
	}
	limiter, err := ratelimit.NewFixedWindow(rc.Config.RateLimit.Requests, window)
	if err != nil {
		return err
	}
	rc.Limiter = limiter
	rc.Sweeper = ratelimit.NewSweeper(limiter, window, func(removed, remaining int) {
		rc.Metrics.SetTrackedClients(remaining)
	})
	return nil
}

// Close releases the transport connections. It is safe to call twice.
func (rc *RuntimeComponents) Close() error {
	if rc.transport == nil {
		return nil
	}
	err := rc.transport.Close()
	rc.transport = nil
	return err
}

// TransportCloser is handed to the daemon, which closes it on shutdown.
func (rc *RuntimeComponents) TransportCloser() io.Closer {
	return rc.transport
}
