package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/BerriAI/litellm-go/internal/resilience"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
)

// Dimension names an admission axis. Every request is admitted against
// all dimensions that carry limits; the first failing dimension rejects
// the request and names itself in the error.
type Dimension string

const (
	DimensionAPIKey  Dimension = "api_key"
	DimensionUser    Dimension = "user"
	DimensionTeam    Dimension = "team"
	DimensionOrg     Dimension = "organization"
	DimensionEndUser Dimension = "end_user"
	DimensionModel   Dimension = "model"
)

// EntityLimits holds the optional limits one dimension entity carries.
// Nil means unlimited on that axis.
type EntityLimits struct {
	RPM                 *int64
	TPM                 *int64
	MaxParallelRequests *int
	MaxBudget           *float64
	BudgetDuration      BudgetDuration
}

// Entity binds a dimension instance to its limits.
type Entity struct {
	Dimension Dimension
	ID        string
	Limits    EntityLimits
}

// AdmissionRequest describes one request's admission check.
type AdmissionRequest struct {
	Model    string
	Entities []Entity
	// EstimatedTokens is the prompt estimate plus the max_tokens
	// reservation; TPM windows reserve this amount up front and settle to
	// actual usage at accounting time.
	EstimatedTokens int64
}

// PaceAlertFunc receives informational projected-limit alerts: the
// window is on pace to exceed its limit but the request was admitted.
type PaceAlertFunc func(ctx context.Context, dimension Dimension, id string, limitType resilience.LimitType, current, limit int64)

// AdmissionControllerConfig configures admission behavior.
type AdmissionControllerConfig struct {
	// Window is the rate-limit window size. Defaults to one minute,
	// matching the shared limiter's fixed windows.
	Window time.Duration
	// FailOpen admits traffic when the shared limit store is unreachable.
	FailOpen bool
	// PaceAlert, when set, receives projected-limit alerts.
	PaceAlert PaceAlertFunc
}

// AdmissionController admits requests against every limited dimension.
// Counters increment first, then check; a rejection or later pipeline
// failure rolls the increments back. ALL dimensions must pass.
type AdmissionController struct {
	limiter  resilience.DistributedLimiter
	budgets  *BudgetTracker
	parallel *resilience.Manager
	config   AdmissionControllerConfig
}

// NewAdmissionController wires the shared window limiter and budget
// tracker. parallel may be nil when max_parallel_requests is unused.
func NewAdmissionController(limiter resilience.DistributedLimiter, budgets *BudgetTracker, parallel *resilience.Manager, cfg AdmissionControllerConfig) *AdmissionController {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &AdmissionController{
		limiter:  limiter,
		budgets:  budgets,
		parallel: parallel,
		config:   cfg,
	}
}

// Admission is a granted admission. Exactly one of Settle or Release
// must be called when the request finishes.
type Admission struct {
	controller  *AdmissionController
	request     AdmissionRequest
	descriptors []resilience.Descriptor
	semaphores  []*resilience.Semaphore
	done        bool
}

// Admit checks every dimension. On success the returned Admission holds
// the window reservations; on failure all increments made so far are
// rolled back and the error names the failing dimension.
func (c *AdmissionController) Admit(ctx context.Context, req AdmissionRequest) (*Admission, error) {
	adm := &Admission{controller: c, request: req}

	// Parallel-request slots first: they are cheap, local and instantly
	// reversible.
	for _, entity := range req.Entities {
		if entity.Limits.MaxParallelRequests == nil || *entity.Limits.MaxParallelRequests <= 0 {
			continue
		}
		if c.parallel == nil {
			continue
		}
		sem := c.parallel.GetSemaphore(semaphoreKey(entity), *entity.Limits.MaxParallelRequests)
		if !sem.TryAcquire() {
			adm.rollback(ctx)
			return nil, llmerrors.NewRateLimitError("", req.Model,
				fmt.Sprintf("max parallel requests exceeded for %s %s", entity.Dimension, entity.ID))
		}
		adm.semaphores = append(adm.semaphores, sem)
	}

	// Window counters: one requests descriptor and one tokens descriptor
	// per limited entity, checked in a single limiter batch.
	var descriptors []resilience.Descriptor
	var owners []Entity
	for _, entity := range req.Entities {
		if entity.Limits.RPM != nil && *entity.Limits.RPM > 0 {
			descriptors = append(descriptors, resilience.Descriptor{
				Key:    string(entity.Dimension),
				Value:  entity.ID,
				Limit:  *entity.Limits.RPM,
				Type:   resilience.LimitTypeRequests,
				Window: c.config.Window,
				Hits:   1,
			})
			owners = append(owners, entity)
		}
		if entity.Limits.TPM != nil && *entity.Limits.TPM > 0 {
			descriptors = append(descriptors, resilience.Descriptor{
				Key:    string(entity.Dimension),
				Value:  entity.ID,
				Limit:  *entity.Limits.TPM,
				Type:   resilience.LimitTypeTokens,
				Window: c.config.Window,
				Hits:   req.EstimatedTokens,
			})
			owners = append(owners, entity)
		}
	}

	if len(descriptors) > 0 {
		results, err := c.limiter.CheckAllow(ctx, descriptors)
		if err != nil {
			if c.config.FailOpen {
				return adm, nil
			}
			adm.rollback(ctx)
			return nil, llmerrors.NewServiceUnavailableError("", req.Model,
				fmt.Sprintf("rate limit store unavailable: %v", err))
		}
		adm.descriptors = descriptors

		for i, result := range results {
			entity := owners[i]
			if !result.Allowed {
				retryAfter := time.Until(time.Unix(result.ResetAt, 0))
				adm.rollback(ctx)
				lerr := llmerrors.NewRateLimitError("", req.Model,
					fmt.Sprintf("%s limit exceeded for %s %s: %d/%d in current window",
						descriptors[i].Type, entity.Dimension, entity.ID, result.Current, descriptors[i].Limit))
				if retryAfter > 0 {
					lerr.RetryAfter = retryAfter
				}
				return nil, lerr
			}
			c.maybePaceAlert(ctx, entity, descriptors[i], result)
		}
	}

	// Budgets last: they read the accumulated spend, no reservation to
	// roll back.
	for _, entity := range req.Entities {
		if err := c.budgetCheck(ctx, entity); err != nil {
			adm.rollback(ctx)
			return nil, err
		}
	}

	return adm, nil
}

func (c *AdmissionController) budgetCheck(ctx context.Context, entity Entity) error {
	if c.budgets == nil {
		return nil
	}
	return c.budgets.Check(ctx, entity.Dimension, entity.ID, entity.Limits.MaxBudget)
}

// maybePaceAlert emits an informational alert when the window is on pace
// to exceed its limit. It never rejects.
func (c *AdmissionController) maybePaceAlert(ctx context.Context, entity Entity, desc resilience.Descriptor, result resilience.LimitResult) {
	if c.config.PaceAlert == nil || result.Current > desc.Limit {
		return
	}
	window := desc.Window.Seconds()
	elapsed := window - float64(result.ResetAt-time.Now().Unix())
	// Wait a quarter of the window before projecting, early samples are
	// all noise.
	if elapsed < window/4 || elapsed <= 0 {
		return
	}
	projected := int64(float64(result.Current) * window / elapsed)
	if projected > desc.Limit {
		c.config.PaceAlert(ctx, entity.Dimension, entity.ID, desc.Type, result.Current, desc.Limit)
	}
}

func semaphoreKey(entity Entity) string {
	return fmt.Sprintf("parallel:%s:%s", entity.Dimension, entity.ID)
}

// Settle finalizes a successful request: token windows are adjusted from
// the admission estimate to actual usage and spend accumulates on every
// budgeted dimension.
func (a *Admission) Settle(ctx context.Context, actualTokens int64, cost float64) error {
	if a.done {
		return nil
	}
	a.done = true
	a.releaseSemaphores()

	var firstErr error
	if delta := actualTokens - a.request.EstimatedTokens; delta != 0 {
		if err := a.adjustTokens(ctx, delta); err != nil {
			firstErr = err
		}
	}

	if a.controller.budgets != nil && cost > 0 {
		for _, entity := range a.request.Entities {
			if entity.Limits.MaxBudget == nil && entity.Limits.BudgetDuration == BudgetDurationNever {
				continue
			}
			if _, err := a.controller.budgets.AddSpend(ctx, entity.Dimension, entity.ID, cost, entity.Limits.BudgetDuration); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Release rolls back every reservation. Called when the pipeline fails
// before any upstream usage happened.
func (a *Admission) Release(ctx context.Context) {
	if a.done {
		return
	}
	a.done = true
	a.rollback(ctx)
}

func (a *Admission) rollback(ctx context.Context) {
	a.releaseSemaphores()
	if len(a.descriptors) == 0 {
		return
	}
	reversed := make([]resilience.Descriptor, len(a.descriptors))
	for i, desc := range a.descriptors {
		desc.Hits = -desc.HitCount()
		reversed[i] = desc
	}
	_ = a.controller.limiter.Adjust(ctx, reversed)
	a.descriptors = nil
}

// adjustTokens applies the estimate-to-actual delta to every token
// window reserved at admission.
func (a *Admission) adjustTokens(ctx context.Context, delta int64) error {
	var adjustments []resilience.Descriptor
	for _, desc := range a.descriptors {
		if desc.Type != resilience.LimitTypeTokens {
			continue
		}
		desc.Hits = delta
		adjustments = append(adjustments, desc)
	}
	if len(adjustments) == 0 {
		return nil
	}
	return a.controller.limiter.Adjust(ctx, adjustments)
}

func (a *Admission) releaseSemaphores() {
	for _, sem := range a.semaphores {
		sem.Release()
	}
	a.semaphores = nil
}
