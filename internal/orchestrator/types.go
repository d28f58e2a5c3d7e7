package orchestrator

import (
	"github.com/harunnryd/odoo-agent/internal/session"
)

// Outcome names how a turn ended. Every turn produces a Response; the
// outcome is how callers branch on failures.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeCommandFailed     Outcome = "command_failed"
	OutcomeCommandParseError Outcome = "command_parse_error"
	OutcomeMalformedCommand  Outcome = "malformed_command"
	OutcomeDelegationFailed  Outcome = "delegation_failed"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeModelError        Outcome = "model_error"
	OutcomeInvalidInput      Outcome = "invalid_input"
)

type Request struct {
	SessionID string `json:"session_id,omitempty"`
	ClientID  string `json:"-"`
	// Role overrides the session's role for this turn.
	Role           string `json:"role,omitempty"`
	Message        string `json:"message"`
	TraceID        string `json:"trace_id,omitempty"`
	IncludeHistory bool   `json:"include_history,omitempty"`
}

// CommandReport describes the command executed for the requesting role.
type CommandReport struct {
	Model     string      `json:"model"`
	Method    string      `json:"method"`
	Success   bool        `json:"success"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Category  string      `json:"category,omitempty"`
	Attempts  int         `json:"attempts"`
	ElapsedMs int64       `json:"elapsed_ms"`
	Cached    bool        `json:"cached,omitempty"`
}

type Response struct {
	Text             string            `json:"response"`
	SessionID        string            `json:"session_id"`
	TraceID          string            `json:"trace_id"`
	Role             string            `json:"role"`
	Outcome          Outcome           `json:"outcome"`
	Delegated        bool              `json:"delegated"`
	DelegatedTo      string            `json:"delegated_to,omitempty"`
	Command          *CommandReport    `json:"command,omitempty"`
	RetryAfterSecs   int               `json:"retry_after_seconds,omitempty"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	History          []session.Message `json:"history,omitempty"`
}
