package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/odoo-agent/internal/daemon"
)

const RateLimitSweeperName = "RateLimitSweeper"

// Sweeper is the lifecycle of ratelimit.Sweeper.
type Sweeper interface {
	Start() error
	Stop(ctx context.Context) error
}

// RateLimitSweeperComponent runs the periodic purge of stale rate-limit
// windows. A nil sweeper, used when rate limiting is disabled, makes the
// component a healthy no-op.
type RateLimitSweeperComponent struct {
	sweeper Sweeper
	started bool
	mu      sync.RWMutex
}

func NewRateLimitSweeperComponent(sweeper Sweeper) *RateLimitSweeperComponent {
	return &RateLimitSweeperComponent{sweeper: sweeper}
}

func (c *RateLimitSweeperComponent) Name() string {
	return RateLimitSweeperName
}

func (c *RateLimitSweeperComponent) Dependencies() []string {
	return nil
}

func (c *RateLimitSweeperComponent) Init(ctx context.Context) error {
	if c.sweeper == nil {
		slog.Info("Rate limiting disabled, sweeper idle", "component", c.Name())
	}
	return nil
}

func (c *RateLimitSweeperComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sweeper == nil {
		return nil
	}
	if err := c.sweeper.Start(); err != nil {
		return fmt.Errorf("start rate limit sweeper: %w", err)
	}
	c.started = true
	return nil
}

func (c *RateLimitSweeperComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false
	return c.sweeper.Stop(ctx)
}

func (c *RateLimitSweeperComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sweeper != nil && !c.started {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}
