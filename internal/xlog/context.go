package xlog

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const correlationIDKey ctxKey = "correlation_id"

// ContextWithCorrelationID stores a correlation ID (one per monitoring
// cycle) in the context so every log line emitted while handling that
// cycle can be tied back together.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from context if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a component logger enriched with the correlation ID
// carried by ctx, if any.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	l := Component(component)
	if id := CorrelationIDFromContext(ctx); id != "" {
		l = l.With().Str("correlation_id", id).Logger()
	}
	return l
}
