package command

import (
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/odoo-agent/internal/session"
)

func setupStore(t *testing.T) (*session.Store, string) {
	t.Helper()
	store := session.NewStore("")
	sess := store.Create("")
	return store, sess.ID
}

func lastMessage(t *testing.T, store *session.Store, id string) session.Message {
	t.Helper()
	sess, err := store.Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) == 0 {
		t.Fatal("expected at least one message")
	}
	return sess.Messages[len(sess.Messages)-1]
}

func TestHandler_CanHandle(t *testing.T) {
	handler := NewHandler(session.NewStore(""))
	if !handler.CanHandle("  /help") {
		t.Fatal("expected slash command to be handled")
	}
	if handler.CanHandle("create a lead /now") {
		t.Fatal("expected plain message to be ignored")
	}
}

func TestHandler_HelpCommand(t *testing.T) {
	store, id := setupStore(t)
	handler := NewHandler(store)

	msg, err := handler.Execute(context.Background(), id, "/help")
	if err != nil {
		t.Fatalf("execute help: %v", err)
	}
	if !strings.Contains(msg, "/history") {
		t.Fatalf("unexpected help text: %s", msg)
	}
	last := lastMessage(t, store, id)
	if last.Role != session.RoleSystem || last.Content != msg {
		t.Fatalf("expected help recorded as system message, got %+v", last)
	}
}

func TestHandler_HistoryCommand(t *testing.T) {
	store, id := setupStore(t)
	handler := NewHandler(store)

	if err := store.Append(id,
		session.NewMessage(session.RoleUser, "first"),
		session.NewMessage(session.RoleAssistant, "second"),
		session.NewMessage(session.RoleUser, "third"),
	); err != nil {
		t.Fatalf("append: %v", err)
	}

	msg, err := handler.Execute(context.Background(), id, "/history 2")
	if err != nil {
		t.Fatalf("execute history: %v", err)
	}
	if strings.Contains(msg, "first") || !strings.Contains(msg, "assistant: second") || !strings.Contains(msg, "user: third") {
		t.Fatalf("unexpected history output: %s", msg)
	}

	msg, _ = handler.Execute(context.Background(), id, "/history nope")
	if msg != "Usage: /history [count]" {
		t.Fatalf("expected usage, got %s", msg)
	}
}

func TestHandler_ClearCommand(t *testing.T) {
	store, id := setupStore(t)
	handler := NewHandler(store)

	if err := store.Append(id, session.NewMessage(session.RoleUser, "hello")); err != nil {
		t.Fatalf("append: %v", err)
	}

	msg, err := handler.Execute(context.Background(), id, "/clear")
	if err != nil {
		t.Fatalf("execute clear: %v", err)
	}
	if msg != "Session cleared." {
		t.Fatalf("unexpected clear output: %s", msg)
	}

	history, err := store.History(id, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty model history after clear, got %d", len(history))
	}
}

func TestHandler_RoleCommand(t *testing.T) {
	store, id := setupStore(t)
	handler := NewHandler(store)

	msg, _ := handler.Execute(context.Background(), id, "/role")
	if !strings.HasPrefix(msg, "Current role: main") {
		t.Fatalf("unexpected role output: %s", msg)
	}

	if msg, _ = handler.Execute(context.Background(), id, "/role CRM"); msg != "Role set to crm" {
		t.Fatalf("unexpected role output: %s", msg)
	}
	sess, _ := store.Get(id)
	if sess.Metadata[MetadataRole] != "crm" {
		t.Fatalf("expected role metadata crm, got %q", sess.Metadata[MetadataRole])
	}

	msg, _ = handler.Execute(context.Background(), id, "/role support")
	if !strings.HasPrefix(msg, "Command failed:") {
		t.Fatalf("expected failure for unknown role, got %s", msg)
	}
}

func TestHandler_UnknownCommand(t *testing.T) {
	store, id := setupStore(t)
	handler := NewHandler(store)

	msg, err := handler.Execute(context.Background(), id, `/frobnicate "a b"`)
	if err != nil {
		t.Fatalf("execute unknown: %v", err)
	}
	if !strings.HasPrefix(msg, "Unknown command: /frobnicate") {
		t.Fatalf("unexpected output: %s", msg)
	}
}

func TestHandler_MissingSession(t *testing.T) {
	handler := NewHandler(session.NewStore(""))
	if _, err := handler.Execute(context.Background(), "missing", "/help"); err == nil {
		t.Fatal("expected error when the session does not exist")
	}
}
