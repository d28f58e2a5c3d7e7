package components

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/odoo-agent/internal/concurrency"
	"github.com/harunnryd/odoo-agent/internal/config"
	"github.com/harunnryd/odoo-agent/internal/daemon"
)

const HTTPServerName = "HTTPServer"

// Reporter produces the health document served on /health.
type Reporter interface {
	Report() daemon.Report
}

type HTTPServerComponent struct {
	reporter     Reporter
	cfg          *config.ServerConfig
	api          http.Handler
	gatherer     prometheus.Gatherer
	dependencies []string
	server       *http.Server
	listener     net.Listener
	shutdownTTL  time.Duration
	initialized  bool
	started      bool
	mu           sync.RWMutex
}

var defaultHTTPDependencies = []string{RemoteStoreName, RateLimitSweeperName}

func NewHTTPServerComponent(reporter Reporter, cfg *config.ServerConfig, api http.Handler, gatherer prometheus.Gatherer) *HTTPServerComponent {
	return NewHTTPServerComponentWithDependencies(reporter, cfg, api, gatherer, defaultHTTPDependencies)
}

func NewHTTPServerComponentWithDependencies(reporter Reporter, cfg *config.ServerConfig, api http.Handler, gatherer prometheus.Gatherer, deps []string) *HTTPServerComponent {
	return &HTTPServerComponent{
		reporter:     reporter,
		cfg:          cfg,
		api:          api,
		gatherer:     gatherer,
		dependencies: append([]string(nil), deps...),
	}
}

func (h *HTTPServerComponent) Name() string {
	return HTTPServerName
}

func (h *HTTPServerComponent) Dependencies() []string {
	return append([]string(nil), h.dependencies...)
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	if h.api != nil {
		mux.Handle("/api/", h.api)
	}

	readTimeout, err := config.DurationOrDefault(h.cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(h.cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(h.cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(h.cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.cfg.Port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout

	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "port", h.cfg.Port)
	return nil
}

// Start binds the port synchronously so a busy port fails startup.
func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	server := h.server
	concurrency.SafeGo("http-server", func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}, nil)

	h.started = true
	slog.Info("HTTPServer started", "component", h.Name())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("HTTPServer not started, skipping stop", "component", h.Name())
		return nil
	}

	slog.Info("Stopping HTTPServer...", "component", h.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !h.started {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: h.Name(), Healthy: true}, nil
}

// handleHealth answers 200 when every component is healthy and 503 otherwise.
func (h *HTTPServerComponent) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	report := h.reporter.Report()
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}
