package ingress

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/odoo-agent/internal/metrics"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/orchestrator"
	"github.com/harunnryd/odoo-agent/internal/protocol"
	"github.com/harunnryd/odoo-agent/internal/ratelimit"
	"github.com/harunnryd/odoo-agent/internal/session"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	Handle(ctx context.Context, req orchestrator.Request) orchestrator.Response
}

type SessionStore interface {
	Create(greeting string) session.Session
	Get(id string) (session.Session, error)
	List() []session.Summary
	Delete(id string) error
	SetStatus(id string, status session.Status) error
	SetMetadata(id, key, value string) error
}

// RemoteStore is the part of the Odoo client exposed over HTTP.
type RemoteStore interface {
	odoo.Invoker
	Batch(ctx context.Context, cmds []protocol.Command) []odoo.ExecutionResult
	ListModels(ctx context.Context, nameFilter string) ([]odoo.ModelInfo, error)
	ModelFields(ctx context.Context, model string) (map[string]interface{}, error)
	ModelExists(ctx context.Context, model string) (bool, error)
	SearchCount(ctx context.Context, model string, domain []interface{}) (int64, error)
	SearchRead(ctx context.Context, model string, domain []interface{}, opts odoo.SearchOptions) ([]map[string]interface{}, error)
}

type Options struct {
	APIKeys        []string
	RequestTimeout time.Duration
	Limiter        ratelimit.Limiter
	Metrics        *metrics.Metrics
}

// Server exposes the agent, its sessions and the remote store as JSON over HTTP.
type Server struct {
	turns          TurnHandler
	sessions       SessionStore
	remote         RemoteStore
	limiter        ratelimit.Limiter
	metrics        *metrics.Metrics
	apiKeys        map[string]struct{}
	requestTimeout time.Duration
}

func NewServer(turns TurnHandler, sessions SessionStore, remote RemoteStore, opts Options) *Server {
	s := &Server{
		turns:          turns,
		sessions:       sessions,
		remote:         remote,
		limiter:        opts.Limiter,
		metrics:        opts.Metrics,
		requestTimeout: opts.RequestTimeout,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	if len(opts.APIKeys) > 0 {
		s.apiKeys = make(map[string]struct{}, len(opts.APIKeys))
		for _, k := range opts.APIKeys {
			s.apiKeys[k] = struct{}{}
		}
	} else {
		slog.Warn("No API keys configured, HTTP API authentication is disabled")
	}
	return s
}

// Handler returns the API routes wrapped in the request middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/agent/query", s.handleQuery)

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/v1/odoo/execute", s.handleExecute)
	mux.HandleFunc("POST /api/v1/odoo/batch", s.handleBatch)
	mux.HandleFunc("GET /api/v1/odoo/records/{model}", s.handleRecords)
	mux.HandleFunc("GET /api/v1/odoo/models", s.handleListModels)
	mux.HandleFunc("GET /api/v1/odoo/models/{model}/fields", s.handleModelFields)

	var h http.Handler = mux
	h = s.authenticate(h)
	h = s.withRequestContext(h)
	h = recoverPanics(h)
	return logRequests(h)
}
