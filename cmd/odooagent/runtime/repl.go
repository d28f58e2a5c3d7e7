package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/odoo-agent/internal/orchestrator"
	"github.com/harunnryd/odoo-agent/internal/session"

	"github.com/google/uuid"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	Handle(ctx context.Context, req orchestrator.Request) orchestrator.Response
}

type REPL struct {
	turns     TurnHandler
	reader    *bufio.Reader
	out       io.Writer
	sessionID string
	role      string
	clientID  string
}

// NewREPL opens or resumes sessionID in sessions. An empty id starts a
// fresh session.
func NewREPL(turns TurnHandler, sessions *session.Store, sessionID, role string, in io.Reader, out io.Writer) *REPL {
	sess, _ := sessions.GetOrCreate(sessionID)
	return &REPL{
		turns:     turns,
		reader:    bufio.NewReader(in),
		out:       out,
		sessionID: sess.ID,
		role:      role,
		clientID:  "cli:" + sess.ID,
	}
}

func (r *REPL) SessionID() string {
	return r.sessionID
}

func (r *REPL) Start(ctx context.Context) error {
	fmt.Fprintf(r.out, "Odoo Agent session: %s\n", r.sessionID)
	fmt.Fprintln(r.out, "Type '/help' for commands, '/session' for the session id, '/exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := r.readLine(ctx); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (r *REPL) readLine(ctx context.Context) error {
	fmt.Fprint(r.out, "> ")
	text, err := r.reader.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(text) == "") {
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	switch text {
	case "/exit":
		return io.EOF
	case "/session":
		fmt.Fprintln(r.out, r.sessionID)
		return nil
	}

	resp := r.turns.Handle(ctx, orchestrator.Request{
		SessionID: r.sessionID,
		ClientID:  r.clientID,
		Role:      r.role,
		Message:   text,
		TraceID:   uuid.NewString(),
	})
	r.print(resp)
	return nil
}

func (r *REPL) print(resp orchestrator.Response) {
	prefix := resp.Role
	if resp.Delegated {
		prefix += " -> " + resp.DelegatedTo
	}
	if prefix == "" {
		prefix = "agent"
	}
	fmt.Fprintf(r.out, "[%s] %s\n", prefix, resp.Text)
	if resp.Outcome != orchestrator.OutcomeOK && resp.Outcome != "" {
		fmt.Fprintf(r.out, "(outcome: %s)\n", resp.Outcome)
	}
}
