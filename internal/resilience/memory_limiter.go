package resilience

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a single-node DistributedLimiter. It mirrors the
// Redis Lua script's fixed-window semantics (lazy rollover on first
// touch after expiry) so single-node and Redis deployments admit the
// same traffic.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	start time.Time
	count int64
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memoryWindow)}
}

// CheckAllow atomically increments each descriptor's window counter and
// reports whether the result stayed within the limit.
func (m *MemoryLimiter) CheckAllow(ctx context.Context, descriptors []Descriptor) ([]LimitResult, error) {
	if len(descriptors) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	results := make([]LimitResult, len(descriptors))
	for i, desc := range descriptors {
		window := desc.Window
		if window <= 0 {
			window = time.Minute
		}

		_, counterKey := descriptorKeys(desc)
		w, ok := m.windows[counterKey]
		if !ok || now.Sub(w.start) >= window {
			w = &memoryWindow{start: now}
			m.windows[counterKey] = w
		}
		w.count += desc.HitCount()

		remaining := desc.Limit - w.count
		if remaining < 0 {
			remaining = 0
		}
		results[i] = LimitResult{
			Allowed:   w.count <= desc.Limit,
			Current:   w.count,
			Remaining: remaining,
			ResetAt:   w.start.Add(window).Unix(),
		}
	}
	return results, nil
}

// Adjust applies Hits deltas to active windows. Expired windows are
// skipped; their counters are gone either way.
func (m *MemoryLimiter) Adjust(ctx context.Context, descriptors []Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, desc := range descriptors {
		if desc.Hits == 0 {
			continue
		}
		window := desc.Window
		if window <= 0 {
			window = time.Minute
		}
		_, counterKey := descriptorKeys(desc)
		w, ok := m.windows[counterKey]
		if !ok || now.Sub(w.start) >= window {
			continue
		}
		w.count += desc.Hits
		if w.count < 0 {
			w.count = 0
		}
	}
	return nil
}
