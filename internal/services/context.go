package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	queueKey     contextKey = "queue"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithQueue annotates context with the queue name (serial, parallel, watch).
func WithQueue(ctx context.Context, queue string) context.Context {
	if queue == "" {
		return ctx
	}
	return context.WithValue(ctx, queueKey, queue)
}

// QueueFromContext returns the queue name if present.
func QueueFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(queueKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
