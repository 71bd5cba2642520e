package auth

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/BerriAI/litellm-go/pkg/cache"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
)

// spendScale stores spend as integer micro-dollars so accumulation can
// ride the cache's atomic IncrEx primitive.
const spendScale = 1e6

// BudgetTracker accumulates spend per dimension through the shared cache
// and enforces max_budget limits. The cache key TTL equals the
// budget_duration, so the window resets lazily: the first increment after
// expiry starts a fresh accumulator. Durable spend (the auth store's
// spent columns) is written separately by the accounting path; this
// tracker is the fast admission-time view.
type BudgetTracker struct {
	cache cache.Cache
}

// NewBudgetTracker creates a tracker over the given cache backend.
func NewBudgetTracker(c cache.Cache) *BudgetTracker {
	return &BudgetTracker{cache: c}
}

func spendKey(dimension Dimension, id string) string {
	return fmt.Sprintf("litellm:spend:%s:%s", dimension, id)
}

// Spend returns the accumulated spend for the dimension entity in the
// current budget window.
func (t *BudgetTracker) Spend(ctx context.Context, dimension Dimension, id string) (float64, error) {
	raw, err := t.cache.Get(ctx, spendKey(dimension, id))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	micros, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt spend counter for %s:%s: %w", dimension, id, err)
	}
	return float64(micros) / spendScale, nil
}

// AddSpend adds cost to the entity's window accumulator and returns the
// new total. duration bounds the window; zero means the spend never
// resets.
func (t *BudgetTracker) AddSpend(ctx context.Context, dimension Dimension, id string, cost float64, duration BudgetDuration) (float64, error) {
	delta := int64(math.Round(cost * spendScale))
	if delta == 0 {
		return t.Spend(ctx, dimension, id)
	}
	ttl := time.Duration(duration.DurationSeconds()) * time.Second
	total, err := t.cache.IncrEx(ctx, spendKey(dimension, id), delta, ttl)
	if err != nil {
		return 0, err
	}
	return float64(total) / spendScale, nil
}

// Check returns a BudgetExceededError when the entity's accumulated
// spend has reached maxBudget. A nil or non-positive maxBudget means
// unlimited.
func (t *BudgetTracker) Check(ctx context.Context, dimension Dimension, id string, maxBudget *float64) error {
	if maxBudget == nil || *maxBudget <= 0 {
		return nil
	}
	spent, err := t.Spend(ctx, dimension, id)
	if err != nil {
		return err
	}
	if spent >= *maxBudget {
		return llmerrors.NewBudgetExceededError(spent, *maxBudget)
	}
	return nil
}

// Reset clears the entity's window accumulator. The background reset job
// calls this when budget_reset_at passes.
func (t *BudgetTracker) Reset(ctx context.Context, dimension Dimension, id string) error {
	return t.cache.Delete(ctx, spendKey(dimension, id))
}
