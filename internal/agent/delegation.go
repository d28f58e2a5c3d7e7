package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/metrics"
	"github.com/harunnryd/odoo-agent/internal/protocol"
)

// MaxDelegationDepth is how many hops one turn may take. A delegated role
// that asks to delegate again has its marker left as plain text.
const MaxDelegationDepth = 1

// Handler runs a full turn for role on input and returns the final text.
// depth is the delegation depth of that turn.
type Handler func(ctx context.Context, role Kind, input string, depth int) (string, error)

// Delegation is the result of inspecting one reply for a delegation marker.
type Delegation struct {
	// Requested is true when a marker was honoured, successfully or not.
	Requested bool
	Source    Kind
	Target    Kind
	// Prefix is the reply text before the marker, or the whole reply when
	// no delegation was requested.
	Prefix  string
	Payload protocol.DelegationPayload
	// Output is the target's final text.
	Output string
	Err    error
}

// Compose appends the delegation outcome to text, which is the processed
// prefix of the source reply.
func (d Delegation) Compose(text string) string {
	if !d.Requested {
		return text
	}
	if d.Err != nil {
		return JoinText(text, "Delegation failed: "+d.Err.Error())
	}
	return JoinText(text, d.Output)
}

// DelegationError explains why a hop did not happen.
type DelegationError struct {
	Reason string
	Cause  error
}

func (e *DelegationError) Error() string {
	return e.Reason
}

func (e *DelegationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{apperrors.ErrDelegation}
	}
	return []error{apperrors.ErrDelegation, e.Cause}
}

type DelegationRouter struct {
	handler  Handler
	matcher  *protocol.DelegationMatcher
	maxDepth int
	metrics  *metrics.Metrics
}

type RouterOption func(*DelegationRouter)

func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *DelegationRouter) {
		r.metrics = m
	}
}

func WithMaxDepth(depth int) RouterOption {
	return func(r *DelegationRouter) {
		r.maxDepth = depth
	}
}

func NewDelegationRouter(handler Handler, opts ...RouterOption) *DelegationRouter {
	r := &DelegationRouter{
		handler:  handler,
		matcher:  protocol.NewDelegationMatcher(Tokens()...),
		maxDepth: MaxDelegationDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route looks for the first delegation marker in text produced by source
// at the given depth and, when the hop is legal, runs the target's turn.
func (r *DelegationRouter) Route(ctx context.Context, source Kind, text string, depth int) Delegation {
	ext := r.matcher.Extract(text)
	if !ext.Found {
		return Delegation{Source: source, Prefix: text}
	}
	if depth >= r.maxDepth {
		slog.Debug("Ignoring nested delegation", append(logger.Attrs(ctx), "role", source, "target", ext.Target, "depth", depth)...)
		return Delegation{Source: source, Prefix: text}
	}

	d := Delegation{Requested: true, Source: source, Prefix: ext.Prefix}

	target, ok := KindFromToken(ext.Target)
	if !ok {
		return r.fail(ctx, d, ext.Target, &DelegationError{Reason: fmt.Sprintf("unknown role %s", ext.Target)})
	}
	d.Target = target

	if !source.CanDelegateTo(target) {
		return r.fail(ctx, d, string(target), &DelegationError{Reason: fmt.Sprintf("%s agent cannot delegate to %s agent", source, target)})
	}

	payload, err := protocol.ParseDelegation(ext.Payload)
	if err != nil {
		return r.fail(ctx, d, string(target), &DelegationError{Reason: "invalid payload: " + err.Error(), Cause: err})
	}
	d.Payload = payload

	slog.Info("Delegating", append(logger.Attrs(ctx), "from", source, "to", target, "instruction", payload.Instruction)...)

	out, err := r.handler(ctx, target, payload.Message(), depth+1)
	if err != nil {
		reason := err.Error()
		var de *DelegationError
		if !errors.As(err, &de) {
			reason = fmt.Sprintf("%s agent did not respond: %v", target, err)
		}
		return r.fail(ctx, d, string(target), &DelegationError{Reason: reason, Cause: err})
	}

	r.metrics.IncDelegation(string(source), string(target), "ok")
	d.Output = out
	return d
}

func (r *DelegationRouter) fail(ctx context.Context, d Delegation, target string, err *DelegationError) Delegation {
	slog.Warn("Delegation failed", append(logger.Attrs(ctx), "from", d.Source, "to", target, "error", err)...)
	r.metrics.IncDelegation(string(d.Source), target, "failed")
	d.Err = err
	return d
}

// JoinText concatenates two reply fragments with a single line break.
func JoinText(head, tail string) string {
	if head == "" {
		return tail
	}
	if tail == "" {
		return head
	}
	if strings.HasSuffix(head, "\n") {
		return head + tail
	}
	return head + "\n" + tail
}
