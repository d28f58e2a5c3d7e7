package components

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/odoo-agent/internal/daemon"
)

const RemoteStoreName = "RemoteStore"

// RemoteConnector is the connection surface of the Odoo client.
type RemoteConnector interface {
	Connect(ctx context.Context) (int64, error)
	Health() error
	AllowedMethods() []string
}

// RemoteStoreComponent authenticates against the remote store at startup.
// A failed connect is logged rather than fatal; the client authenticates
// lazily on the first command and health reports the last failure.
type RemoteStoreComponent struct {
	client         RemoteConnector
	closer         io.Closer
	connectTimeout time.Duration
	url            string
	initialized    bool
	mu             sync.RWMutex
}

func NewRemoteStoreComponent(client RemoteConnector, closer io.Closer, url string, connectTimeout time.Duration) *RemoteStoreComponent {
	return &RemoteStoreComponent{
		client:         client,
		closer:         closer,
		url:            url,
		connectTimeout: connectTimeout,
	}
}

func (c *RemoteStoreComponent) Name() string {
	return RemoteStoreName
}

func (c *RemoteStoreComponent) Dependencies() []string {
	return nil
}

func (c *RemoteStoreComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return fmt.Errorf("remote store client is nil")
	}
	if allowed := c.client.AllowedMethods(); len(allowed) == 0 {
		slog.Warn("No method allow-list configured, model-issued commands may invoke any remote method",
			"component", c.Name())
	} else {
		slog.Info("Remote method allow-list active", "component", c.Name(), "methods", allowed)
	}

	c.initialized = true
	return nil
}

func (c *RemoteStoreComponent) Start(ctx context.Context) error {
	connectCtx := ctx
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	uid, err := c.client.Connect(connectCtx)
	if err != nil {
		slog.Warn("Remote store unreachable at startup, will retry on first command",
			"component", c.Name(), "url", c.url, "error", err)
		return nil
	}
	slog.Info("Remote store connected", "component", c.Name(), "url", c.url, "uid", uid)
	return nil
}

func (c *RemoteStoreComponent) Stop(ctx context.Context) error {
	if c.closer == nil {
		return nil
	}
	if err := c.closer.Close(); err != nil {
		return fmt.Errorf("close remote transport: %w", err)
	}
	slog.Info("Remote store transport closed", "component", c.Name())
	return nil
}

func (c *RemoteStoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if err := c.client.Health(); err != nil {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}
