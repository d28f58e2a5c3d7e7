package logger

import "context"

type contextKey string

const TraceIDKey contextKey = "trace_id"
const SessionIDKey contextKey = "session_id"
const ClientIDKey contextKey = "client_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ClientIDKey, id)
}

func GetClientID(ctx context.Context) string {
	if id, ok := ctx.Value(ClientIDKey).(string); ok {
		return id
	}
	return ""
}

// Attrs returns the request-scoped identifiers present in ctx as slog key/value pairs.
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, "trace_id", id)
	}
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, "session_id", id)
	}
	if id := GetClientID(ctx); id != "" {
		attrs = append(attrs, "client_id", id)
	}
	return attrs
}
