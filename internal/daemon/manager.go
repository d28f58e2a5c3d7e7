package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/odoo-agent/internal/concurrency"
	"github.com/harunnryd/odoo-agent/internal/config"
)

type Daemon struct {
	cfg             *config.Config
	instance        string
	components      []Component
	initOrder       []string
	initialized     []string
	health          HealthStatus
	uptimeStart     time.Time
	mu              sync.RWMutex
	healthCheckDone chan struct{}
	now             func() time.Time
}

// NewDaemon creates a daemon for the named instance, usually the remote
// database the agent serves.
func NewDaemon(instance string, cfg *config.Config) (*Daemon, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Daemon{
		instance:        instance,
		cfg:             cfg,
		components:      make([]Component, 0),
		health:          StatusStarting,
		uptimeStart:     time.Now(),
		healthCheckDone: make(chan struct{}),
		now:             time.Now,
	}, nil
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start initialises and starts every component, then blocks until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Odoo agent daemon starting...", "instance", d.instance)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(context.Background())
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.startComponents(ctx); err != nil {
		startupShutdownTimeout, timeoutErr := config.DurationOrDefault(d.cfg.Daemon.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout)
		if timeoutErr != nil {
			return fmt.Errorf("parse daemon startup shutdown timeout: %w", timeoutErr)
		}
		d.gracefulShutdown(context.Background(), startupShutdownTimeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.mu.Lock()
	d.uptimeStart = d.now()
	d.mu.Unlock()
	d.setHealth(StatusRunning)
	slog.Info("Odoo agent daemon is running", "instance", d.instance, "components", len(d.components))

	concurrency.SafeGo("daemon-health-monitor", func() { d.startHealthMonitor(ctx) }, nil)

	<-ctx.Done()

	slog.Info("Context cancelled, initiating graceful shutdown", "instance", d.instance, "reason", ctx.Err())
	d.setHealth(StatusStopping)
	close(d.healthCheckDone)
	shutdownTimeout, err := config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	if err := d.gracefulShutdown(context.Background(), shutdownTimeout); err != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	return nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.health != StatusRunning {
		return 0
	}
	return d.now().Sub(d.uptimeStart)
}

func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := make([]Component, len(d.components))
	copy(components, d.components)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth)
	for _, comp := range components {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

// Report bundles the daemon status with every component's health.
func (d *Daemon) Report() Report {
	return newReport(d.instance, d.Health(), d.Uptime(), d.ComponentHealth())
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) validateConfig() error {
	slog.Info("Validating configuration...")

	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if d.cfg.Odoo.URL == "" {
		return fmt.Errorf("odoo.url is required")
	}
	if d.cfg.Odoo.Database == "" {
		return fmt.Errorf("odoo.database is required")
	}
	if d.cfg.RateLimit.Enabled {
		if d.cfg.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate_limit.requests must be positive, got %d", d.cfg.RateLimit.Requests)
		}
		if _, err := d.cfg.RateLimit.WindowDuration(); err != nil {
			return err
		}
	}
	if _, err := d.cfg.Retry.Policy(); err != nil {
		return err
	}

	slog.Info("Configuration validated", "instance", d.instance, "port", d.cfg.Server.Port)
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	slog.Info("Initializing components...", "instance", d.instance)

	if err := d.validateDependencies(); err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}

	initOrder, err := d.resolveInitOrder()
	if err != nil {
		return fmt.Errorf("failed to resolve init order: %w", err)
	}
	d.initOrder = initOrder

	for _, compName := range initOrder {
		comp := d.getComponentByName(compName)
		if comp == nil {
			continue
		}
		slog.Info("Initializing component...", "component", comp.Name())
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", comp.Name(), "error", err)
			return fmt.Errorf("component %s init failed: %w", comp.Name(), err)
		}
		d.initialized = append(d.initialized, compName)
		slog.Info("Component initialized", "component", comp.Name())
	}

	slog.Info("All components initialized", "count", len(d.components))
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	slog.Info("Starting components...", "instance", d.instance)

	for _, name := range d.startOrder() {
		comp := d.getComponentByName(name)
		if comp == nil {
			continue
		}
		slog.Info("Starting component...", "component", name)
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", name, "error", err)
			return fmt.Errorf("component %s startup failed: %w", name, err)
		}
		slog.Info("Component started", "component", name)
	}

	slog.Info("All components started", "count", len(d.components))
	return nil
}

// startOrder falls back to registration order when init has not resolved one.
func (d *Daemon) startOrder() []string {
	if len(d.initOrder) > 0 {
		return d.initOrder
	}
	names := make([]string, 0, len(d.components))
	for _, comp := range d.components {
		names = append(names, comp.Name())
	}
	return names
}

func (d *Daemon) gracefulShutdown(ctx context.Context, timeout time.Duration) error {
	slog.Info("Graceful shutdown initiated", "instance", d.instance, "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.shutdownComponents(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("Shutdown completed with error", "instance", d.instance, "error", err)
		} else {
			slog.Info("Graceful shutdown completed", "instance", d.instance)
		}
		return err
	case <-shutdownCtx.Done():
		if ctx.Err() != nil {
			slog.Info("Shutdown cancelled by parent context", "instance", d.instance, "reason", ctx.Err())
			return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
		}
		slog.Error("Shutdown timeout exceeded", "instance", d.instance, "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// shutdownComponents stops components in reverse start order and joins
// their errors.
func (d *Daemon) shutdownComponents(ctx context.Context) error {
	order := d.startOrder()
	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		comp := d.getComponentByName(name)
		if comp == nil {
			continue
		}

		slog.Info("Stopping component...", "component", name)
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
			errs = append(errs, fmt.Errorf("component %s stop failed: %w", name, err))
		} else {
			slog.Info("Component stopped", "component", name)
		}
	}

	d.setHealth(StatusStopped)
	return errors.Join(errs...)
}

// rollback stops only the components whose Init succeeded.
func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...", "instance", d.instance)

	for i := len(d.initialized) - 1; i >= 0; i-- {
		comp := d.getComponentByName(d.initialized[i])
		if comp == nil {
			continue
		}
		slog.Info("Rolling back component...", "component", comp.Name())
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Rollback failed", "component", comp.Name(), "error", err)
		}
	}
	d.initialized = nil

	d.setHealth(StatusStopped)
}

func (d *Daemon) getComponentByName(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.getComponentByName(name)
}

func (d *Daemon) startHealthMonitor(ctx context.Context) {
	healthCheckInterval, err := config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval)
	if err != nil {
		slog.Error("Failed to parse daemon health check interval", "error", err)
		return
	}

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.healthCheckDone:
			return
		case <-ticker.C:
			d.checkComponentHealth(ctx)
		}
	}
}

func (d *Daemon) checkComponentHealth(ctx context.Context) {
	healths := d.ComponentHealth()
	unhealthyCount := 0

	for name, health := range healths {
		select {
		case <-ctx.Done():
			slog.Info("Component health check cancelled", "reason", ctx.Err())
			return
		default:
		}

		if !health.Healthy {
			unhealthyCount++
			slog.Warn("Component unhealthy", "component", name, "error", health.Error)
		}
	}

	if unhealthyCount > 0 {
		slog.Warn("Daemon has unhealthy components", "count", unhealthyCount, "total", len(healths))
	} else {
		slog.Debug("All components healthy", "count", len(healths))
	}
}

func (d *Daemon) validateDependencies() error {
	slog.Info("Validating component dependencies...")

	componentMap := make(map[string]Component)
	for _, comp := range d.components {
		if _, dup := componentMap[comp.Name()]; dup {
			return fmt.Errorf("component %s registered twice", comp.Name())
		}
		componentMap[comp.Name()] = comp
	}

	for _, comp := range d.components {
		for _, depName := range comp.Dependencies() {
			if _, exists := componentMap[depName]; !exists {
				return fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), depName)
			}
		}
	}

	slog.Info("All dependencies validated", "components", len(d.components))
	return nil
}

func (d *Daemon) resolveInitOrder() ([]string, error) {
	slog.Info("Resolving component initialization order...")

	visited := make(map[string]bool)
	tempVisited := make(map[string]bool)
	order := []string{}

	var visit func(name string) error
	visit = func(name string) error {
		if tempVisited[name] {
			return fmt.Errorf("circular dependency detected involving %s", name)
		}
		if visited[name] {
			return nil
		}

		comp := d.getComponentByName(name)
		if comp == nil {
			return fmt.Errorf("component %s not found", name)
		}

		tempVisited[name] = true
		for _, depName := range comp.Dependencies() {
			if err := visit(depName); err != nil {
				return err
			}
		}
		tempVisited[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp.Name()); err != nil {
			return nil, err
		}
	}

	slog.Info("Initialization order resolved", "order", order)
	return order, nil
}
