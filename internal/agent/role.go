package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/model"
	"github.com/harunnryd/odoo-agent/internal/model/contract"
)

// Kind names an agent role.
type Kind string

const (
	Main  Kind = "main"
	Sales Kind = "sales"
	CRM   Kind = "crm"
)

var tokens = map[Kind]string{
	Main:  "MAIN_AGENT",
	Sales: "SALES_AGENT",
	CRM:   "CRM_AGENT",
}

// delegationTargets lists which roles each role may hand work to.
var delegationTargets = map[Kind][]Kind{
	Main:  {Sales, CRM},
	CRM:   {Sales},
	Sales: nil,
}

// ParseKind accepts a role name case-insensitively; empty means Main.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return Main, nil
	}
	if _, ok := tokens[k]; !ok {
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown role %q, expected one of %s", s, strings.Join(KindNames(), ", ")))
	}
	return k, nil
}

// KindFromToken maps a marker token such as SALES_AGENT back to its role.
func KindFromToken(token string) (Kind, bool) {
	for k, t := range tokens {
		if t == token {
			return k, true
		}
	}
	return "", false
}

// Tokens returns the marker token of every role.
func Tokens() []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func KindNames() []string {
	names := make([]string, 0, len(tokens))
	for k := range tokens {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Token is the role name used in DELEGATE_TO_<TOKEN>: markers.
func (k Kind) Token() string {
	return tokens[k]
}

func (k Kind) CanDelegateTo(target Kind) bool {
	for _, t := range delegationTargets[k] {
		if t == target {
			return true
		}
	}
	return false
}

func (k Kind) Targets() []Kind {
	return append([]Kind(nil), delegationTargets[k]...)
}

// Role is a configured persona: a kind, its system prompt and the model it
// talks to.
type Role struct {
	kind      Kind
	prompt    string
	generator model.Generator
}

func NewRole(kind Kind, prompt string, generator model.Generator) *Role {
	return &Role{kind: kind, prompt: prompt, generator: generator}
}

func (r *Role) Kind() Kind {
	return r.kind
}

func (r *Role) Prompt() string {
	return r.prompt
}

// Generate asks the model for this role's next reply.
func (r *Role) Generate(ctx context.Context, history []contract.Message) (string, error) {
	start := time.Now()
	text, err := r.generator.Generate(ctx, r.prompt, history)
	if err != nil {
		slog.Error("Model generation failed", append(logger.Attrs(ctx), "role", r.kind, "error", err)...)
		return "", err
	}
	slog.Debug("Model generation completed", append(logger.Attrs(ctx), "role", r.kind, "elapsed", time.Since(start), "chars", len(text))...)
	return text, nil
}

// Registry holds one Role per Kind.
type Registry struct {
	roles map[Kind]*Role
}

// NewRegistry builds every role with its configured prompt, falling back
// to the built-in prompt when none is set.
func NewRegistry(prompts config.PromptsConfig, generator model.Generator) *Registry {
	pick := func(configured, fallback string) string {
		if strings.TrimSpace(configured) == "" {
			return fallback
		}
		return configured
	}
	return &Registry{roles: map[Kind]*Role{
		Main:  NewRole(Main, pick(prompts.Main, config.DefaultMainPrompt), generator),
		Sales: NewRole(Sales, pick(prompts.Sales, config.DefaultSalesPrompt), generator),
		CRM:   NewRole(CRM, pick(prompts.CRM, config.DefaultCRMPrompt), generator),
	}}
}

func (r *Registry) Get(kind Kind) (*Role, error) {
	role, ok := r.roles[kind]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("role %s not configured", kind))
	}
	return role, nil
}
