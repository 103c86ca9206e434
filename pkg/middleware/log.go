package middleware

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// contextKey namespaces context keys to avoid collisions with other
// packages' context values.
type contextKey string

const (
	// correlationIDKey is the context key for a cache operation's
	// correlation ID.
	correlationIDKey contextKey = "correlation-id"
)

// NewCorrelationID mints a new UUID-based correlation ID for a cache
// lifecycle event (a reset, a prewarm pass), so its audit entry and its
// log lines can be joined later.
//
// The distributed cache used this same generator for HTTP request IDs;
// here it correlates administrative operations instead, since the
// parameter cache has no HTTP surface of its own (spec Non-goals).
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID attaches id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromCtx retrieves the correlation ID from ctx, or "" if
// none was attached.
func CorrelationIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// LogOperation writes a structured JSON log entry for a cache lifecycle
// operation (reset, prewarm, subscription), tagged with the ctx's
// correlation ID if one is present, and any extra fields describing the
// operation (e.g. "pattern", "parameters_affected", "duration_ms").
//
// Log fields:
//   - timestamp: ISO 8601 timestamp
//   - correlation_id: joins this entry to an invalidation audit record
//   - operation: short operation name (e.g. "reset_pattern")
//   - ...fields: caller-supplied details
func LogOperation(ctx context.Context, operation string, fields map[string]any) {
	entry := map[string]any{
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"correlation_id": CorrelationIDFromCtx(ctx),
		"operation":      operation,
	}
	for k, v := range fields {
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] failed to marshal log entry: %v", err)
		log.Printf("[INFO] operation=%s correlation_id=%s", operation, CorrelationIDFromCtx(ctx))
		return
	}
	log.Printf("[INFO] %s", string(data))
}

// LogError writes a structured JSON log entry for an operation that
// failed, at WARN level (never ERROR: nothing in this cache's hot path
// raises exceptions -- see paramcache's silent-drop philosophy -- so a
// logged operation failure is always an administrative-path condition,
// not a cache-correctness incident).
func LogError(ctx context.Context, operation string, err error, fields map[string]any) {
	entry := map[string]any{
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"correlation_id": CorrelationIDFromCtx(ctx),
		"operation":      operation,
		"error":          err.Error(),
	}
	for k, v := range fields {
		entry[k] = v
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		log.Printf("[ERROR] failed to marshal log entry: %v", marshalErr)
		log.Printf("[WARN] operation=%s error=%v", operation, err)
		return
	}
	log.Printf("[WARN] %s", string(data))
}
