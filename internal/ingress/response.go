package ingress

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/ratelimit"
)

type errorResponse struct {
	StatusCode int                    `json:"status_code"`
	Error      string                 `json:"error"`
	Message    string                 `json:"message"`
	Category   string                 `json:"category,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	TraceID    string                 `json:"trace_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	writeJSON(w, status, newErrorResponse(w, r, status, title, message))
}

func newErrorResponse(w http.ResponseWriter, r *http.Request, status int, title, message string) errorResponse {
	traceID := logger.GetTraceID(r.Context())
	if traceID == "" {
		traceID = w.Header().Get(HeaderTraceID)
	}
	return errorResponse{
		StatusCode: status,
		Error:      title,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
	}
}

// writeAppError maps a categorised error onto its HTTP status.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		setRetryAfter(w, exceeded.RetryAfter)
	}
	body := newErrorResponse(w, r, status, http.StatusText(status), err.Error())
	body.Category = apperrors.Category(err)
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrCommandParse),
		errors.Is(err, apperrors.ErrMalformedCommand):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrMethodNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrRemoteValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrAuthentication):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// setRetryAfter writes whole seconds, rounded up.
func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := retryAfterSeconds(d)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
