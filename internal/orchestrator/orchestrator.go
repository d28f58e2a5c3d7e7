package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/harunnryd/odoo-agent/internal/agent"
	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/metrics"
	"github.com/harunnryd/odoo-agent/internal/model/contract"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/orchestrator/command"
	"github.com/harunnryd/odoo-agent/internal/protocol"
	"github.com/harunnryd/odoo-agent/internal/ratelimit"
	"github.com/harunnryd/odoo-agent/internal/session"

	"github.com/google/uuid"
)

const (
	capabilityGenerate = "generate"
	capabilityInvoke   = "invoke"
	localClientID      = "local"
)

// Orchestrator runs one conversational turn per request: generate, route a
// delegation, execute an embedded command, then record the exchange.
type Orchestrator struct {
	sessions     *session.Store
	roles        *agent.Registry
	invoker      odoo.Invoker
	limiter      ratelimit.Limiter
	commands     command.Handler
	delegation   *agent.DelegationRouter
	metrics      *metrics.Metrics
	historyLimit int
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		o.historyLimit = n
	}
}

func WithCommandHandler(h command.Handler) Option {
	return func(o *Orchestrator) {
		o.commands = h
	}
}

// New wires an Orchestrator. A nil limiter allows every call.
func New(sessions *session.Store, roles *agent.Registry, invoker odoo.Invoker, limiter ratelimit.Limiter, opts ...Option) *Orchestrator {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	o := &Orchestrator{
		sessions:     sessions,
		roles:        roles,
		invoker:      invoker,
		limiter:      limiter,
		historyLimit: config.DefaultAgentsHistoryLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.commands == nil {
		o.commands = command.NewHandler(sessions)
	}
	o.delegation = agent.NewDelegationRouter(o.delegate, agent.WithMetrics(o.metrics))
	return o
}

// turn is the outcome of one role's Generating cycle.
type turn struct {
	text        string
	outcome     Outcome
	command     *CommandReport
	delegatedTo agent.Kind
	err         error
}

// Handle never returns an error: every failure is described by the
// response outcome and text.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Response {
	start := time.Now()

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = localClientID
	}
	ctx = logger.WithTraceID(ctx, traceID)
	ctx = logger.WithClientID(ctx, clientID)

	resp := Response{SessionID: req.SessionID, TraceID: traceID, Role: req.Role}
	finish := func() Response {
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		o.metrics.ObserveTurn(resp.Role, string(resp.Outcome), time.Since(start))
		return resp
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		resp.Outcome = OutcomeInvalidInput
		resp.Text = "Message must not be empty."
		return finish()
	}

	sess, created := o.sessions.GetOrCreate(req.SessionID)
	resp.SessionID = sess.ID
	ctx = logger.WithSessionID(ctx, sess.ID)
	if created {
		slog.Info("Session started", logger.Attrs(ctx)...)
	}

	kind, err := o.resolveRole(req.Role, sess)
	if err != nil {
		resp.Outcome = OutcomeInvalidInput
		resp.Text = err.Error()
		return finish()
	}
	resp.Role = string(kind)

	if o.commands.CanHandle(message) {
		text, err := o.commands.Execute(ctx, sess.ID, message)
		if err != nil {
			slog.Warn("Slash command not recorded", append(logger.Attrs(ctx), "error", err)...)
		}
		resp.Text = text
		resp.Outcome = OutcomeOK
		o.attachHistory(&resp, req.IncludeHistory)
		return finish()
	}

	history, err := o.sessions.History(sess.ID, o.historyLimit)
	if err != nil {
		resp.Outcome = OutcomeInvalidInput
		resp.Text = err.Error()
		return finish()
	}
	history = append(history, contract.Message{Role: contract.RoleUser, Content: message})

	slog.Info("Turn started", append(logger.Attrs(ctx), "role", kind, "history", len(history))...)

	t := o.runTurn(ctx, kind, history, 0)
	resp.Text = t.text
	resp.Outcome = t.outcome
	resp.Command = t.command
	resp.Delegated = t.delegatedTo != ""
	resp.DelegatedTo = string(t.delegatedTo)

	var exceeded *ratelimit.ExceededError
	if errors.As(t.err, &exceeded) {
		resp.RetryAfterSecs = int(math.Ceil(exceeded.RetryAfter.Seconds()))
	}

	// A turn rejected before the model was called leaves no trace in the
	// conversation.
	if !(t.outcome == OutcomeRateLimited && t.err != nil) {
		if err := o.sessions.Append(sess.ID,
			session.NewMessage(session.RoleUser, message),
			session.NewMessage(session.RoleAssistant, t.text),
		); err != nil {
			slog.Warn("Failed to record turn", append(logger.Attrs(ctx), "error", err)...)
		}
	}

	o.attachHistory(&resp, req.IncludeHistory)
	slog.Info("Turn finished", append(logger.Attrs(ctx), "role", kind, "outcome", resp.Outcome, "delegated_to", resp.DelegatedTo)...)
	return finish()
}

func (o *Orchestrator) resolveRole(requested string, sess session.Session) (agent.Kind, error) {
	if strings.TrimSpace(requested) == "" {
		requested = sess.Metadata[command.MetadataRole]
	}
	return agent.ParseKind(requested)
}

func (o *Orchestrator) attachHistory(resp *Response, include bool) {
	if !include {
		return
	}
	if sess, err := o.sessions.Get(resp.SessionID); err == nil {
		resp.History = sess.Messages
	}
}

// runTurn performs Generating, then the delegation and command stages on
// the reply. err is set only when no reply text was produced.
func (o *Orchestrator) runTurn(ctx context.Context, kind agent.Kind, history []contract.Message, depth int) turn {
	role, err := o.roles.Get(kind)
	if err != nil {
		return turn{text: err.Error(), outcome: OutcomeInvalidInput, err: err}
	}

	if err := o.gate(ctx, capabilityGenerate); err != nil {
		return turn{text: rateLimitText(err), outcome: OutcomeRateLimited, err: err}
	}

	raw, err := role.Generate(ctx, history)
	if err != nil {
		return turn{
			text:    "I'm having trouble reaching the language model right now. Please try again shortly.",
			outcome: OutcomeModelError,
			err:     err,
		}
	}

	d := o.delegation.Route(ctx, kind, raw, depth)

	text, report, outcome := o.executeCommand(ctx, d.Prefix)
	t := turn{text: d.Compose(text), outcome: outcome, command: report}
	if d.Requested {
		t.delegatedTo = d.Target
		if d.Err != nil && t.outcome == OutcomeOK {
			t.outcome = OutcomeDelegationFailed
		}
	}
	return t
}

// delegate is the DelegationRouter handler: the target role runs with a
// transient history holding only the forwarded payload.
func (o *Orchestrator) delegate(ctx context.Context, kind agent.Kind, input string, depth int) (string, error) {
	t := o.runTurn(ctx, kind, []contract.Message{{Role: contract.RoleUser, Content: input}}, depth)
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

// executeCommand runs the first DATABASE_OPERATION: in text and splices
// the outcome in place of the marker segment.
func (o *Orchestrator) executeCommand(ctx context.Context, text string) (string, *CommandReport, Outcome) {
	ext := protocol.Extract(text)
	if !ext.Found {
		return text, nil, OutcomeOK
	}
	prefix := splicePrefix(ext.Prefix)

	cmd, err := protocol.Validate(ext.Payload)
	if err != nil {
		outcome, annotation := OutcomeCommandParseError, parseErrorPrefix+err.Error()
		if errors.Is(err, apperrors.ErrMalformedCommand) {
			outcome, annotation = OutcomeMalformedCommand, malformedPrefix+err.Error()
		}
		o.metrics.IncCommand(string(outcome))
		slog.Warn("Rejected database operation", append(logger.Attrs(ctx), "outcome", outcome, "error", err)...)
		return agent.JoinText(prefix, annotation), nil, outcome
	}

	report := &CommandReport{Model: cmd.Model, Method: cmd.RemoteMethod()}

	if err := o.gate(ctx, capabilityInvoke); err != nil {
		report.Error = err.Error()
		report.Category = apperrors.CategoryRateLimited
		o.metrics.IncCommand(string(OutcomeRateLimited))
		return agent.JoinText(prefix, failurePrefix+rateLimitText(err)), report, OutcomeRateLimited
	}

	res := o.invoker.Invoke(ctx, cmd)
	report.Success = res.Success
	report.Result = res.Result
	report.Error = res.Error
	report.Category = res.Category
	report.Attempts = res.Attempts
	report.ElapsedMs = res.ElapsedMs
	report.Cached = res.Cached

	if !res.Success {
		o.metrics.IncCommand(string(OutcomeCommandFailed))
		return agent.JoinText(prefix, failurePrefix+res.Error), report, OutcomeCommandFailed
	}

	o.metrics.IncCommand(string(OutcomeOK))
	slog.Info("Database operation executed", append(logger.Attrs(ctx), "command", cmd.String(), "attempts", res.Attempts, "cached", res.Cached)...)
	return agent.JoinText(prefix, successPrefix+formatResult(res.Result)), report, OutcomeOK
}

func (o *Orchestrator) gate(ctx context.Context, capability string) error {
	clientID := logger.GetClientID(ctx)
	if err := o.limiter.Check(clientID); err != nil {
		o.metrics.IncRateLimited(capability)
		slog.Warn("Rate limit exceeded", append(logger.Attrs(ctx), "capability", capability, "error", err)...)
		return err
	}
	return nil
}

func rateLimitText(err error) string {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", int(math.Ceil(exceeded.RetryAfter.Seconds())))
	}
	return "Rate limit exceeded. Please try again later."
}
