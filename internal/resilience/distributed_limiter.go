package resilience

import (
	"context"
	"time"
)

// LimitType defines what we are limiting (Requests, Tokens, etc.)
type LimitType string

const (
	LimitTypeRequests LimitType = "requests" // RPM
	LimitTypeTokens   LimitType = "tokens"   // TPM
)

// Descriptor defines a specific limit rule
type Descriptor struct {
	Key    string        // e.g., "api-key-123"
	Value  string        // e.g., "model-gpt4"
	Limit  int64         // The limit threshold (e.g., 100)
	Type   LimitType     // RPM or TPM
	Window time.Duration // Window size (default 1m)
	// Hits is the amount to add to the window counter. Zero means 1.
	// Token descriptors reserve the admission estimate here and settle
	// the delta through Adjust once actual usage is known.
	Hits int64
}

// HitCount returns the effective increment for the descriptor.
func (d Descriptor) HitCount() int64 {
	if d.Hits == 0 {
		return 1
	}
	return d.Hits
}

// LimitResult contains the result of a check
type LimitResult struct {
	Allowed   bool
	Current   int64
	Remaining int64
	ResetAt   int64 // Timestamp when window resets
	Error     error
}

// DistributedLimiter interface supports batch checking, mirroring litellm's capability to check RPM and TPM simultaneously.
type DistributedLimiter interface {
	// CheckAllow atomically checks and increments limits for multiple descriptors.
	// Returns a list of results corresponding to the input descriptors.
	CheckAllow(ctx context.Context, descriptors []Descriptor) ([]LimitResult, error)

	// Adjust applies the descriptors' Hits deltas to active windows without
	// admission checks. Negative deltas release reservations made by
	// CheckAllow (failed pipeline, token settle to actuals).
	Adjust(ctx context.Context, descriptors []Descriptor) error
}
