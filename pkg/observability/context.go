package observability

import (
	"context"

	"github.com/google/uuid"
)

// Attribute keys the logger adds from the context.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
)

// Unexported key types keep other packages from reading or overwriting the IDs.
type (
	correlationKey struct{}
	requestKey     struct{}
)

func withID[K any](ctx context.Context, key K, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, key, id)
}

func idFrom[K any](ctx context.Context, key K) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key).(string)
	return id
}

// WithCorrelationID tags ctx with a correlation ID that survives across
// services; empty generates one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withID(ctx, correlationKey{}, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return idFrom(ctx, correlationKey{})
}

// WithRequestID tags ctx with a request ID; empty generates one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestKey{})
}

// NewRequestContext starts a request: a fresh request ID, and the given
// correlation ID or a new one.
func NewRequestContext(ctx context.Context, correlationID string) context.Context {
	return WithCorrelationID(WithRequestID(ctx, ""), correlationID)
}
