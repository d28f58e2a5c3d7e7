package odoo

import (
	"context"
)

// ExecuteRequest is one execute_kw call against the object endpoint.
type ExecuteRequest struct {
	Database string
	UID      int64
	Password string
	Model    string
	Method   string
	Args     []interface{}
	Kwargs   map[string]interface{}
}

// Transport is the RPC surface of the remote object store.
type Transport interface {
	// Version returns the server version information from the common endpoint.
	Version(ctx context.Context) (map[string]interface{}, error)
	// Authenticate returns the user id, or 0 when the credentials are rejected.
	Authenticate(ctx context.Context, database, username, password string) (int64, error)
	// ExecuteKw invokes model.method with positional and keyword arguments.
	ExecuteKw(ctx context.Context, req ExecuteRequest) (interface{}, error)
}
