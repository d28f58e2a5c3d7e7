package ingress

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/odoo-agent/internal/concurrency"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/ratelimit"
)

const (
	HeaderAPIKey  = "X-API-Key"
	HeaderTraceID = "X-Trace-ID"
)

// authenticate rejects requests without a configured X-API-Key. It is a
// pass-through when no keys are configured.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			slog.Warn("API key missing in request", logger.Attrs(r.Context())...)
			writeError(w, r, http.StatusForbidden, "Forbidden", "API key is missing")
			return
		}
		if !s.validKey(key) {
			slog.Warn("Invalid API key", append(logger.Attrs(r.Context()), "key_prefix", keyPrefix(key))...)
			writeError(w, r, http.StatusForbidden, "Forbidden", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validKey(key string) bool {
	for k := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func keyPrefix(key string) string {
	if len(key) > 5 {
		return key[:5] + "..."
	}
	return key
}

// withRequestContext attaches the trace and client ids, and the request
// timeout, to the request context.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		clientID := ratelimit.ClientID(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get(HeaderAPIKey))

		ctx := logger.WithTraceID(r.Context(), traceID)
		ctx = logger.WithClientID(ctx, clientID)
		if s.requestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
			defer cancel()
		}

		w.Header().Set(HeaderTraceID, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer concurrency.Recover("http "+r.URL.Path, func(interface{}) {
			writeError(w, r, http.StatusInternalServerError, "Internal Server Error", "unexpected server error")
		})
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
			"trace_id", rec.Header().Get(HeaderTraceID),
		)
	})
}
