package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown", "k", "v")
	assert.Contains(t, buf.String(), "shown")
}

func TestAttrs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Attrs(ctx))

	ctx = WithTraceID(ctx, "t-1")
	ctx = WithSessionID(ctx, "s-1")
	ctx = WithClientID(ctx, "127.0.0.1:abcde")

	assert.Equal(t, []any{"trace_id", "t-1", "session_id", "s-1", "client_id", "127.0.0.1:abcde"}, Attrs(ctx))
	assert.Equal(t, "s-1", GetSessionID(ctx))
}
