package pubsub

import (
	"errors"
	"fmt"
	"time"

	"github.com/groundstation/telemetry-paramcache/pkg/utils"
)

// Event versioning strategy:
// - Version 1: Initial schema
// - Future versions: Add fields, never remove (backward compatible)
// - Consumers should check Version and handle appropriately

const (
	// EventVersion1 is the current event schema version
	EventVersion1 = 1
)

// ResetEvent represents a parameter cache reset request, published by
// package invalidation after ResetParameter/ResetPattern runs against the
// live ParameterCache.
//
// Reset modes:
//   - Exact parameters: Provide Parameters slice
//   - Pattern-based: Provide Pattern (e.g., "SC001/*")
//   - Combination: Both Parameters and Pattern can be set
type ResetEvent struct {
	// Version of the event schema (for backward compatibility)
	Version int `json:"version"`

	// Service that triggered the reset (e.g., "invalidation", "ops-console")
	Service string `json:"service"`

	// Parameters to reset (exact match). Can be empty if Pattern is set.
	Parameters []string `json:"parameters,omitempty"`

	// Pattern for wildcard reset (e.g., "SC001/*"). Optional.
	Pattern string `json:"pattern,omitempty"`

	// TriggeredAt is the time the reset was requested
	TriggeredAt time.Time `json:"triggered_at"`

	// Meta contains optional metadata (e.g., reason, operator)
	Meta map[string]string `json:"meta,omitempty"`

	// RequestID correlates this reset with an audit log entry
	RequestID string `json:"request_id"`
}

// Validate checks if the ResetEvent is well-formed.
func (e *ResetEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if len(e.Parameters) == 0 && e.Pattern == "" {
		return errors.New("at least one of parameters or pattern must be set")
	}

	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for correlation")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *ResetEvent) ToJSON() ([]byte, error) {
	return utils.MarshalEvent(e)
}

// ResetEventFromJSON deserializes a ResetEvent from JSON.
func ResetEventFromJSON(data []byte) (*ResetEvent, error) {
	var e ResetEvent
	if err := utils.UnmarshalEvent(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResetEvent: %w", err)
	}
	return &e, nil
}

// SubscriptionEvent represents a request to prewarm (enroll) a set of
// parameters ahead of the first reader call, under the lazy-subscription
// policy.
//
// Use cases:
//   - Prewarming a known display-page watchlist on startup
//   - Re-subscribing parameters after a bulk Reset
type SubscriptionEvent struct {
	// Version of the event schema
	Version int `json:"version"`

	// Service that triggered the subscription request
	Service string `json:"service"`

	// Parameters to subscribe. Cannot be empty.
	Parameters []string `json:"parameters"`

	// Priority of the prewarm (higher = more urgent). Default: 0
	Priority int `json:"priority"`

	// TriggeredAt is the time the subscription was requested
	TriggeredAt time.Time `json:"triggered_at"`

	// Meta contains optional metadata (e.g., "source=display-page", "batch_id=123")
	Meta map[string]string `json:"meta,omitempty"`

	// RequestID for correlation
	RequestID string `json:"request_id"`
}

// Validate checks if the SubscriptionEvent is well-formed.
func (e *SubscriptionEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if len(e.Parameters) == 0 {
		return errors.New("parameters cannot be empty")
	}

	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for correlation")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *SubscriptionEvent) ToJSON() ([]byte, error) {
	return utils.MarshalEvent(e)
}

// SubscriptionEventFromJSON deserializes a SubscriptionEvent from JSON.
func SubscriptionEventFromJSON(data []byte) (*SubscriptionEvent, error) {
	var e SubscriptionEvent
	if err := utils.UnmarshalEvent(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal SubscriptionEvent: %w", err)
	}
	return &e, nil
}

// WarmCompletedEvent represents the completion of a prewarm pass over a
// watchlist of parameters.
//
// Use cases:
//   - Notify monitoring of warming completion
//   - Track warming performance and failures
type WarmCompletedEvent struct {
	// Version of the event schema
	Version int `json:"version"`

	// Service that performed the warming (typically "warming")
	Service string `json:"service"`

	// Status of the warming operation ("success", "partial", "failed")
	Status string `json:"status"`

	// Duration of the warming operation
	Duration time.Duration `json:"duration"`

	// ParametersWarmed is the number of parameters successfully enrolled
	ParametersWarmed int `json:"parameters_warmed"`

	// ParametersFailed is the number of parameters that failed to enroll
	ParametersFailed int `json:"parameters_failed"`

	// Error message if Status is "failed" or "partial"
	Error string `json:"error,omitempty"`

	// CompletedAt is the time the warming completed
	CompletedAt time.Time `json:"completed_at"`

	// Meta contains optional metadata (e.g., "batch_id", "source")
	Meta map[string]string `json:"meta,omitempty"`

	// RequestID for correlation
	RequestID string `json:"request_id"`
}

// Validate checks if the WarmCompletedEvent is well-formed.
func (e *WarmCompletedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	validStatuses := map[string]bool{"success": true, "partial": true, "failed": true}
	if !validStatuses[e.Status] {
		return fmt.Errorf("invalid status: %s (must be success, partial, or failed)", e.Status)
	}

	if e.Duration < 0 {
		return errors.New("duration cannot be negative")
	}

	if e.ParametersWarmed < 0 || e.ParametersFailed < 0 {
		return errors.New("parameters_warmed and parameters_failed cannot be negative")
	}

	if e.CompletedAt.IsZero() {
		return errors.New("completed_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for correlation")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *WarmCompletedEvent) ToJSON() ([]byte, error) {
	return utils.MarshalEvent(e)
}

// WarmCompletedEventFromJSON deserializes a WarmCompletedEvent from JSON.
func WarmCompletedEventFromJSON(data []byte) (*WarmCompletedEvent, error) {
	var e WarmCompletedEvent
	if err := utils.UnmarshalEvent(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal WarmCompletedEvent: %w", err)
	}
	return &e, nil
}
