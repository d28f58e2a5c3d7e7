package odoo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
)

const (
	commonPath = "/xmlrpc/2/common"
	objectPath = "/xmlrpc/2/object"
)

// XMLRPCTransport talks to the standard /xmlrpc/2 endpoints.
type XMLRPCTransport struct {
	base string
	rt   http.RoundTripper

	mu     sync.Mutex
	common *xmlrpc.Client
	object *xmlrpc.Client
}

// NewXMLRPCTransport dials nothing; connections are opened on first call.
// connectTimeout bounds TCP dialing and callTimeout bounds waiting for a response.
func NewXMLRPCTransport(baseURL string, connectTimeout, callTimeout time.Duration) (*XMLRPCTransport, error) {
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("odoo url is empty")
	}

	rt := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: callTimeout,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}

	t := &XMLRPCTransport{base: base, rt: rt}
	if _, err := t.client(commonPath); err != nil {
		return nil, err
	}
	return t, nil
}

// client returns the endpoint client, recreating it after the rpc layer
// shut it down (which happens on non-2xx HTTP replies).
func (t *XMLRPCTransport) client(path string) (*xmlrpc.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := &t.common
	if path == objectPath {
		slot = &t.object
	}
	if *slot != nil {
		return *slot, nil
	}

	c, err := xmlrpc.NewClient(t.base+path, t.rt)
	if err != nil {
		return nil, fmt.Errorf("create xmlrpc client for %s: %w", path, err)
	}
	*slot = c
	return c, nil
}

func (t *XMLRPCTransport) drop(path string, c *xmlrpc.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := &t.common
	if path == objectPath {
		slot = &t.object
	}
	if *slot == c {
		*slot = nil
	}
}

func (t *XMLRPCTransport) call(ctx context.Context, path, method string, params []interface{}, reply interface{}) error {
	c, err := t.client(path)
	if err != nil {
		return err
	}
	err = call(ctx, c, method, params, reply)
	if errors.Is(err, rpc.ErrShutdown) {
		t.drop(path, c)
	}
	return err
}

func (t *XMLRPCTransport) Version(ctx context.Context) (map[string]interface{}, error) {
	var reply map[string]interface{}
	if err := t.call(ctx, commonPath, "version", nil, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (t *XMLRPCTransport) Authenticate(ctx context.Context, database, username, password string) (int64, error) {
	var reply interface{}
	params := []interface{}{database, username, password, map[string]interface{}{}}
	if err := t.call(ctx, commonPath, "authenticate", params, &reply); err != nil {
		return 0, err
	}

	switch uid := reply.(type) {
	case int64:
		return uid, nil
	case int:
		return int64(uid), nil
	case bool:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected authenticate reply %T", reply)
	}
}

func (t *XMLRPCTransport) ExecuteKw(ctx context.Context, req ExecuteRequest) (interface{}, error) {
	args := req.Args
	if args == nil {
		args = []interface{}{}
	}
	params := []interface{}{req.Database, req.UID, req.Password, req.Model, req.Method, args}
	if len(req.Kwargs) > 0 {
		params = append(params, req.Kwargs)
	}

	var reply interface{}
	if err := t.call(ctx, objectPath, "execute_kw", params, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (t *XMLRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for _, c := range []*xmlrpc.Client{t.common, t.object} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil && !errors.Is(err, rpc.ErrShutdown) {
			firstErr = err
		}
	}
	t.common, t.object = nil, nil
	return firstErr
}

// call runs a blocking XML-RPC call and gives up when ctx is done. The
// abandoned request is bounded by the transport timeouts.
func call(ctx context.Context, client *xmlrpc.Client, method string, params []interface{}, reply interface{}) error {
	var args interface{}
	if params != nil {
		args = params
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, reply)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
