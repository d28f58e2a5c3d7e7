package odoo

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
	"github.com/harunnryd/odoo-agent/internal/protocol"

	"golang.org/x/sync/singleflight"
)

// ExecutionResult is the outcome of one command. Result and Error are
// mutually exclusive.
type ExecutionResult struct {
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Category  string      `json:"category,omitempty"`
	ElapsedMs int64       `json:"elapsed_ms"`
	Attempts  int         `json:"attempts"`
	Cached    bool        `json:"cached,omitempty"`

	err error
}

// Err returns the classified failure, or nil on success.
func (r ExecutionResult) Err() error {
	return r.err
}

// Invoker executes validated commands against the remote store.
type Invoker interface {
	Invoke(ctx context.Context, cmd protocol.Command) ExecutionResult
}

type Settings struct {
	Database       string
	Username       string
	Password       string
	CallTimeout    time.Duration
	AllowedMethods []string
}

// Client authenticates lazily, caches the session uid and executes calls
// with timing, classification and retry of transient faults.
type Client struct {
	transport Transport
	settings  Settings
	retrier   *Retrier
	cache     *ReadCache
	metrics   *metrics.Metrics
	allowed   map[string]struct{}
	now       func() time.Time

	mu          sync.RWMutex
	uid         int64
	lastConnErr error
	auth        singleflight.Group
}

type Option func(*Client)

func WithRetrier(r *Retrier) Option {
	return func(c *Client) {
		c.retrier = r
	}
}

func WithCache(cache *ReadCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(transport Transport, settings Settings, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		settings:  settings,
		now:       time.Now,
	}
	if len(settings.AllowedMethods) > 0 {
		c.allowed = make(map[string]struct{}, len(settings.AllowedMethods))
		for _, m := range settings.AllowedMethods {
			c.allowed[m] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		policy, _ := config.RetryConfig{}.Policy()
		c.retrier = NewRetrier(policy)
	}
	return c
}

// AllowedMethods returns the configured allow-list, empty when every method is permitted.
func (c *Client) AllowedMethods() []string {
	out := make([]string, 0, len(c.allowed))
	for m := range c.allowed {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.settings.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.settings.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// Connect authenticates and caches the uid. Concurrent callers share one
// authenticate round trip.
func (c *Client) Connect(ctx context.Context) (int64, error) {
	v, err, _ := c.auth.Do("authenticate", func() (interface{}, error) {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		uid, err := c.transport.Authenticate(callCtx, c.settings.Database, c.settings.Username, c.settings.Password)
		if err != nil {
			err = Classify(err)
		} else if uid == 0 {
			err = &CallError{
				Category: apperrors.ErrAuthentication,
				Message:  "authentication failed, check credentials and database name",
			}
		}

		c.mu.Lock()
		c.lastConnErr = err
		if err == nil {
			c.uid = uid
		}
		c.mu.Unlock()

		if err != nil {
			slog.Error("Odoo authentication failed", append(logger.Attrs(ctx), "database", c.settings.Database, "error", err)...)
			return int64(0), err
		}
		slog.Info("Connected to Odoo", "database", c.settings.Database, "uid", uid)
		return uid, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (c *Client) ensureConnected(ctx context.Context) (int64, error) {
	c.mu.RLock()
	uid := c.uid
	c.mu.RUnlock()
	if uid != 0 {
		return uid, nil
	}
	return c.Connect(ctx)
}

// forget drops a cached uid unless another caller already replaced it.
func (c *Client) forget(uid int64) {
	c.mu.Lock()
	if c.uid == uid {
		c.uid = 0
	}
	c.mu.Unlock()
}

// Connected reports whether a session uid is cached.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid != 0
}

// Health reports the last connection failure, if any.
func (c *Client) Health() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.uid != 0 {
		return nil
	}
	if c.lastConnErr != nil {
		return c.lastConnErr
	}
	return apperrors.Transient("not connected to Odoo")
}

func (c *Client) execute(ctx context.Context, uid int64, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	v, err := c.transport.ExecuteKw(callCtx, ExecuteRequest{
		Database: c.settings.Database,
		UID:      uid,
		Password: c.settings.Password,
		Model:    model,
		Method:   method,
		Args:     args,
		Kwargs:   kwargs,
	})
	if err != nil {
		return nil, Classify(err)
	}
	return v, nil
}

// Invoke executes cmd and never returns an error: failures are reported in
// the result. Transient faults are retried per the retry policy, an
// authentication fault triggers exactly one re-authentication.
func (c *Client) Invoke(ctx context.Context, cmd protocol.Command) ExecutionResult {
	start := c.now()
	method := cmd.RemoteMethod()
	args := cmd.Args
	if args == nil {
		args = []interface{}{}
	}

	if c.allowed != nil {
		if _, ok := c.allowed[method]; !ok {
			err := apperrors.MethodNotAllowed(fmt.Sprintf("method %s is not in the allowed list", method))
			return c.fail(ctx, cmd, err, 0, start)
		}
	}

	if c.cache != nil && IsReadMethod(method) {
		v, hit := c.cache.Get(cmd.Model, method, args, cmd.Kwargs)
		c.metrics.IncCacheLookup(hit)
		if hit {
			slog.Debug("Odoo cache hit", append(logger.Attrs(ctx), "model", cmd.Model, "method", method)...)
			return ExecutionResult{Success: true, Result: v, Cached: true, ElapsedMs: c.now().Sub(start).Milliseconds()}
		}
	}

	reauthed := false
	var value interface{}
	attempts, err := c.retrier.Do(ctx, func(ctx context.Context) error {
		uid, err := c.ensureConnected(ctx)
		if err != nil {
			return err
		}
		v, err := c.execute(ctx, uid, cmd.Model, method, args, cmd.Kwargs)
		if err != nil && errors.Is(err, apperrors.ErrAuthentication) && !reauthed {
			reauthed = true
			slog.Warn("Odoo session rejected, re-authenticating", append(logger.Attrs(ctx), "model", cmd.Model, "method", method)...)
			c.forget(uid)
			if uid, err = c.Connect(ctx); err != nil {
				return err
			}
			v, err = c.execute(ctx, uid, cmd.Model, method, args, cmd.Kwargs)
		}
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	c.metrics.AddRemoteRetries(method, attempts-1)

	if err != nil {
		return c.fail(ctx, cmd, Classify(err), attempts, start)
	}

	if c.cache != nil {
		if IsReadMethod(method) {
			c.cache.Put(cmd.Model, method, args, cmd.Kwargs, value)
		} else if n := c.cache.InvalidateModel(cmd.Model); n > 0 {
			slog.Debug("Odoo cache invalidated", "model", cmd.Model, "entries", n)
		}
	}

	elapsed := c.now().Sub(start)
	c.metrics.ObserveRemoteCall(method, "ok", elapsed)
	slog.Info("Odoo call succeeded", append(logger.Attrs(ctx),
		"model", cmd.Model, "method", method, "attempts", attempts, "elapsed", elapsed)...)

	return ExecutionResult{
		Success:   true,
		Result:    value,
		ElapsedMs: elapsed.Milliseconds(),
		Attempts:  attempts,
	}
}

func (c *Client) fail(ctx context.Context, cmd protocol.Command, err error, attempts int, start time.Time) ExecutionResult {
	elapsed := c.now().Sub(start)
	category := apperrors.Category(err)
	c.metrics.ObserveRemoteCall(cmd.RemoteMethod(), category, elapsed)
	slog.Warn("Odoo call failed", append(logger.Attrs(ctx),
		"model", cmd.Model, "method", cmd.RemoteMethod(), "category", category, "attempts", attempts, "error", err)...)

	return ExecutionResult{
		Success:   false,
		Error:     err.Error(),
		Category:  category,
		ElapsedMs: elapsed.Milliseconds(),
		Attempts:  attempts,
		err:       err,
	}
}
