package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/harunnryd/odoo-agent/internal/agent"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/session"

	"github.com/google/shlex"
)

// MetadataRole is the session metadata key holding the role chosen with /role.
const MetadataRole = "role"

const defaultHistoryCount = 10

type Handler interface {
	CanHandle(input string) bool
	Execute(ctx context.Context, sessionID string, input string) (string, error)
}

type sessionStore interface {
	Get(id string) (session.Session, error)
	Append(id string, msgs ...session.Message) error
	Clear(id string) error
	SetMetadata(id, key, value string) error
}

type DefaultCommandHandler struct {
	sessions sessionStore
}

func NewHandler(sessions sessionStore) *DefaultCommandHandler {
	return &DefaultCommandHandler{sessions: sessions}
}

func (h *DefaultCommandHandler) CanHandle(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Execute answers a slash command locally and records the answer as a
// system message, which is never sent to the model.
func (h *DefaultCommandHandler) Execute(ctx context.Context, sessionID string, input string) (string, error) {
	parts, parseErr := shlex.Split(strings.TrimSpace(input))
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	slog.Info("Executing slash command", append(logger.Attrs(ctx), "cmd", cmd)...)

	var msg string
	var err error

	switch cmd {
	case "/help":
		msg = h.helpText()
	case "/history":
		msg, err = h.handleHistory(sessionID, args)
	case "/clear":
		msg, err = h.handleClear(sessionID)
	case "/role":
		msg, err = h.handleRole(sessionID, args)
	default:
		msg = fmt.Sprintf("Unknown command: %s. Type /help for the list of commands.", cmd)
	}

	if err != nil {
		msg = fmt.Sprintf("Command failed: %v", err)
		slog.Error("Command execution failed", append(logger.Attrs(ctx), "cmd", cmd, "error", err)...)
	}

	if err := h.sessions.Append(sessionID, session.NewMessage(session.RoleSystem, msg)); err != nil {
		return msg, err
	}
	return msg, nil
}

func (h *DefaultCommandHandler) handleHistory(sessionID string, args []string) (string, error) {
	n := defaultHistoryCount
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return "Usage: /history [count]", nil
		}
		n = v
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, m := range sess.Messages {
		if m.Role == session.RoleSystem {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04:05"), m.Role, m.Content))
	}
	if len(lines) == 0 {
		return "No messages yet.", nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

func (h *DefaultCommandHandler) handleClear(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	if err := h.sessions.Clear(sessionID); err != nil {
		return "", err
	}
	return "Session cleared.", nil
}

func (h *DefaultCommandHandler) handleRole(sessionID string, args []string) (string, error) {
	if len(args) < 1 {
		sess, err := h.sessions.Get(sessionID)
		if err != nil {
			return "", err
		}
		current := sess.Metadata[MetadataRole]
		if current == "" {
			current = string(agent.Main)
		}
		return fmt.Sprintf("Current role: %s. Available roles: %s", current, strings.Join(agent.KindNames(), ", ")), nil
	}

	kind, err := agent.ParseKind(args[0])
	if err != nil {
		return "", err
	}
	if err := h.sessions.SetMetadata(sessionID, MetadataRole, string(kind)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Role set to %s", kind), nil
}

func (h *DefaultCommandHandler) helpText() string {
	return "Available commands: /help, /history [count], /clear, /role [main|sales|crm]"
}
