package routers

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/router"
)

// ErrNoAvailableDeployment is returned when no healthy deployment is available.
var ErrNoAvailableDeployment = errors.New("no available deployment for model")

// ErrNoDeploymentsWithTag is returned when no deployments match the requested tags.
var ErrNoDeploymentsWithTag = errors.New("no deployments match the requested tags")

// timeoutPenaltyMs is appended to the latency history on 408/504 failures so
// latency-based strategies steer away from deployments that time out.
const timeoutPenaltyMs = 1000000.0

// statsEntry tracks node-local performance metrics for a deployment.
type statsEntry struct {
	TotalRequests       int64
	SuccessCount        int64
	FailureCount        int64
	ActiveRequests      int64
	ConsecutiveFailures int64
	LatencyHistory      []float64
	TTFTHistory         []float64
	AvgLatencyMs        float64
	AvgTTFTMs           float64
	MaxLatencyListSize  int
	CurrentMinuteTPM    int64
	CurrentMinuteRPM    int64
	CurrentMinuteKey    string
	LastRequestTime     time.Time
	CooldownUntil       time.Time

	ewmaLatency *EWMA
	ewmaSuccess *EWMA
}

// BaseRouter provides common functionality for all routing strategies.
// Specific strategies embed this and override the selection logic.
//
// Two modes:
//   - Local (store == nil): all stats live in an in-process map and the
//     cooldown policy is applied here.
//   - Distributed (store != nil): counters, usage and cooldowns are shared
//     through a StatsStore; the store applies the cooldown policy so every
//     node sees the same health picture. EWMA smoothing stays node-local
//     either way.
type BaseRouter struct {
	mu          sync.RWMutex
	rngMu       sync.Mutex
	deployments map[string][]*ExtendedDeployment
	stats       map[string]*statsEntry
	store       router.StatsStore
	config      router.Config
	rng         *rand.Rand
	strategy    router.Strategy
}

// NewBaseRouter creates a base router that keeps stats in local memory.
func NewBaseRouter(config router.Config) *BaseRouter {
	return NewBaseRouterWithStore(config, nil)
}

// NewBaseRouterWithStore creates a base router backed by a shared StatsStore.
// A nil store falls back to local in-memory stats.
func NewBaseRouterWithStore(config router.Config, store router.StatsStore) *BaseRouter {
	return &BaseRouter{
		deployments: make(map[string][]*ExtendedDeployment),
		stats:       make(map[string]*statsEntry),
		store:       store,
		config:      config,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		strategy:    config.Strategy,
	}
}

// GetStrategy returns the current routing strategy.
func (r *BaseRouter) GetStrategy() router.Strategy {
	return r.strategy
}

func (r *BaseRouter) randIntn(n int) int {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Intn(n)
}

func (r *BaseRouter) randFloat64() float64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Float64()
}

func (r *BaseRouter) randShuffle(n int, swap func(i, j int)) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	r.rng.Shuffle(n, swap)
}

func (r *BaseRouter) ewmaAlpha() float64 {
	if r.config.EWMAAlpha > 0 && r.config.EWMAAlpha <= 1 {
		return r.config.EWMAAlpha
	}
	return 0.3
}

// modelKey returns the routing group a deployment belongs to.
func modelKey(deployment *provider.Deployment) string {
	if deployment.ModelAlias != "" {
		return deployment.ModelAlias
	}
	return deployment.ModelName
}

// AddDeployment registers a new deployment with default configuration.
func (r *BaseRouter) AddDeployment(deployment *provider.Deployment) {
	r.AddDeploymentWithConfig(deployment, router.DeploymentConfig{})
}

// AddDeploymentWithConfig registers a deployment with routing configuration.
func (r *BaseRouter) AddDeploymentWithConfig(deployment *provider.Deployment, config router.DeploymentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	extended := &ExtendedDeployment{
		Deployment: deployment,
		Config:     config,
	}

	model := modelKey(deployment)
	r.deployments[model] = append(r.deployments[model], extended)
	r.stats[deployment.ID] = r.newStatsEntry()
}

// RemoveDeployment removes a deployment from the router.
func (r *BaseRouter) RemoveDeployment(deploymentID string) {
	r.mu.Lock()
	for model, deps := range r.deployments {
		for i, d := range deps {
			if d.ID == deploymentID {
				r.deployments[model] = append(deps[:i], deps[i+1:]...)
				break
			}
		}
	}
	delete(r.stats, deploymentID)
	r.mu.Unlock()

	if r.store != nil {
		_ = r.store.DeleteStats(context.Background(), deploymentID)
	}
}

// GetDeployments returns all deployments for a model.
func (r *BaseRouter) GetDeployments(model string) []*provider.Deployment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := r.deployments[model]
	result := make([]*provider.Deployment, len(deps))
	for i, d := range deps {
		result[i] = d.Deployment
	}
	return result
}

// GetStats returns the current stats for a deployment. In distributed mode
// the shared store wins, overlaid with the node-local moving averages.
func (r *BaseRouter) GetStats(deploymentID string) *router.DeploymentStats {
	if r.store != nil {
		if stats, err := r.store.GetStats(context.Background(), deploymentID); err == nil {
			r.mu.RLock()
			r.overlayLocalLocked(deploymentID, stats)
			r.mu.RUnlock()
			return stats
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localStatsLocked(deploymentID)
}

// IsCircuitOpen checks if the deployment is in cooldown.
func (r *BaseRouter) IsCircuitOpen(deployment *provider.Deployment) bool {
	if r.store != nil {
		until, err := r.store.GetCooldownUntil(context.Background(), deployment.ID)
		if err != nil {
			return false
		}
		return time.Now().Before(until)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.stats[deployment.ID]
	if !ok {
		return false
	}
	return time.Now().Before(stats.CooldownUntil)
}

// ReportRequestStart increments the active request count.
func (r *BaseRouter) ReportRequestStart(ctx context.Context, deployment *provider.Deployment) {
	r.mu.Lock()
	stats := r.getOrCreateStats(deployment.ID)
	stats.ActiveRequests++
	r.mu.Unlock()

	if r.store != nil {
		_ = r.store.IncrementActiveRequests(ctx, deployment.ID)
	}
}

// ReportRequestEnd decrements the active request count.
func (r *BaseRouter) ReportRequestEnd(ctx context.Context, deployment *provider.Deployment) {
	r.mu.Lock()
	stats := r.getOrCreateStats(deployment.ID)
	if stats.ActiveRequests > 0 {
		stats.ActiveRequests--
	}
	r.mu.Unlock()

	if r.store != nil {
		_ = r.store.DecrementActiveRequests(ctx, deployment.ID)
	}
}

// ReportSuccess records a successful request with metrics.
func (r *BaseRouter) ReportSuccess(ctx context.Context, deployment *provider.Deployment, metrics *router.ResponseMetrics) {
	r.mu.Lock()
	stats := r.getOrCreateStats(deployment.ID)
	stats.TotalRequests++
	stats.SuccessCount++
	stats.ConsecutiveFailures = 0
	stats.LastRequestTime = time.Now()

	latencyMs := float64(metrics.Latency.Milliseconds())
	r.appendToHistory(&stats.LatencyHistory, latencyMs, stats.MaxLatencyListSize)
	stats.ewmaLatency.Add(latencyMs)
	stats.ewmaSuccess.Add(1)

	if metrics.TimeToFirstToken > 0 {
		ttftMs := float64(metrics.TimeToFirstToken.Milliseconds())
		r.appendToHistory(&stats.TTFTHistory, ttftMs, stats.MaxLatencyListSize)
		if stats.AvgTTFTMs == 0 {
			stats.AvgTTFTMs = ttftMs
		} else {
			stats.AvgTTFTMs = stats.AvgTTFTMs*0.9 + ttftMs*0.1
		}
	}

	if stats.AvgLatencyMs == 0 {
		stats.AvgLatencyMs = latencyMs
	} else {
		stats.AvgLatencyMs = stats.AvgLatencyMs*0.9 + latencyMs*0.1
	}

	r.updateUsageStats(stats, metrics.TotalTokens)
	r.mu.Unlock()

	if r.store != nil {
		_ = r.store.RecordSuccess(ctx, deployment.ID, metrics)
	}
}

// ReportFailure records a failed request and applies the cooldown policy.
//
// Caller mistakes (400/401/404/422, context-length, content-policy, budget)
// never cool a deployment down and do not advance the failure streak.
// Everything else increments ConsecutiveFailures: crossing the minor
// threshold cools the deployment for CooldownPeriod, crossing the major
// threshold doubles the cooldown and fires the outage alert. A 429 with
// ImmediateCooldownOn429 cools immediately, honoring Retry-After when the
// upstream sent one. Single-deployment groups are never cooled down: there
// is nothing to shift traffic to.
func (r *BaseRouter) ReportFailure(ctx context.Context, deployment *provider.Deployment, err error) {
	var llmErr *llmerrors.LLMError
	errors.As(err, &llmErr)

	r.mu.Lock()
	stats := r.getOrCreateStats(deployment.ID)
	stats.TotalRequests++
	stats.FailureCount++
	stats.LastRequestTime = time.Now()
	stats.ewmaSuccess.Add(0)

	if llmErr != nil && (llmErr.StatusCode == http.StatusRequestTimeout || llmErr.StatusCode == http.StatusGatewayTimeout) {
		r.appendToHistory(&stats.LatencyHistory, timeoutPenaltyMs, stats.MaxLatencyListSize)
	}

	groupSize := len(r.deployments[modelKey(deployment)])
	if llmerrors.IsCooldownRequiredForError(err) {
		stats.ConsecutiveFailures++
		if r.store == nil && groupSize > 1 {
			r.applyCooldownPolicyLocked(stats, deployment, llmErr)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		opts := failureRecordOptions{isSingleDeployment: groupSize <= 1}
		if fw, ok := r.store.(failureRecordWithOptions); ok {
			_ = fw.RecordFailureWithOptions(ctx, deployment.ID, err, opts)
		} else {
			_ = r.store.RecordFailure(ctx, deployment.ID, err)
		}
	}
}

// applyCooldownPolicyLocked decides whether the failure just recorded puts
// the deployment into cooldown. Caller holds r.mu and has already verified
// the error is cooldown-eligible and the group has alternatives.
func (r *BaseRouter) applyCooldownPolicyLocked(stats *statsEntry, deployment *provider.Deployment, llmErr *llmerrors.LLMError) {
	if llmErr != nil && llmErr.StatusCode == http.StatusTooManyRequests && r.config.ImmediateCooldownOn429 {
		period := r.config.CooldownPeriod
		if llmErr.RetryAfter > 0 {
			period = llmErr.RetryAfter
		}
		stats.CooldownUntil = time.Now().Add(period)
		return
	}

	if r.config.MinRequestsForThreshold > 0 && stats.TotalRequests < int64(r.config.MinRequestsForThreshold) {
		return
	}

	if major := r.config.MajorOutageThreshold; major > 0 && stats.ConsecutiveFailures >= int64(major) {
		stats.CooldownUntil = time.Now().Add(2 * r.config.CooldownPeriod)
		if r.config.OnOutageAlert != nil {
			go r.config.OnOutageAlert(deployment.ID, deployment.ProviderName, stats.ConsecutiveFailures)
		}
		return
	}

	if minor := r.config.ConsecutiveFailureThreshold; minor > 0 && stats.ConsecutiveFailures >= int64(minor) {
		stats.CooldownUntil = time.Now().Add(r.config.CooldownPeriod)
		return
	}

	if r.config.FailureThresholdPercent > 0 {
		rate := float64(stats.FailureCount) / float64(stats.TotalRequests)
		if rate > r.config.FailureThresholdPercent {
			stats.CooldownUntil = time.Now().Add(r.config.CooldownPeriod)
		}
	}
}

// snapshotDeployments resolves a model name to its deployment group.
// Model groups win over deployment-id lookups on collision; a bare
// deployment ID resolves to a single-entry slice.
func (r *BaseRouter) snapshotDeployments(model string) []*ExtendedDeployment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if deps := r.deployments[model]; len(deps) > 0 {
		out := make([]*ExtendedDeployment, len(deps))
		copy(out, deps)
		return out
	}

	for _, deps := range r.deployments {
		for _, d := range deps {
			if d.ID == model {
				return []*ExtendedDeployment{d}
			}
		}
	}

	if d := r.defaultDeploymentFor(model); d != nil {
		return []*ExtendedDeployment{{Deployment: d}}
	}
	return nil
}

// defaultDeploymentFor instantiates the default deployment template for
// an unknown model group. The struct and its metadata map are copied;
// deeper values are shared, since picks only write top-level fields.
func (r *BaseRouter) defaultDeploymentFor(model string) *provider.Deployment {
	tmpl := r.config.DefaultDeployment
	if tmpl == nil {
		return nil
	}
	d := *tmpl
	d.ModelName = model
	if d.ID == "" {
		d.ID = tmpl.ProviderName + "-" + model
	}
	if tmpl.Metadata != nil {
		d.Metadata = make(map[string]string, len(tmpl.Metadata))
		for k, v := range tmpl.Metadata {
			d.Metadata[k] = v
		}
	}
	return &d
}

// statsSnapshot fetches stats for the given deployments exactly once per
// pick. Store errors fail open: a deployment with unknown stats is treated
// as healthy rather than dropped.
func (r *BaseRouter) statsSnapshot(ctx context.Context, deployments []*ExtendedDeployment) map[string]*router.DeploymentStats {
	out := make(map[string]*router.DeploymentStats, len(deployments))

	if r.store == nil {
		r.mu.RLock()
		for _, d := range deployments {
			out[d.ID] = r.localStatsLocked(d.ID)
		}
		r.mu.RUnlock()
		return out
	}

	for _, d := range deployments {
		stats, err := r.store.GetStats(ctx, d.ID)
		if err != nil {
			out[d.ID] = nil
			continue
		}
		out[d.ID] = stats
	}

	// Moving averages are node-local even in distributed mode.
	r.mu.RLock()
	for _, d := range deployments {
		if s := out[d.ID]; s != nil {
			r.overlayLocalLocked(d.ID, s)
		}
	}
	r.mu.RUnlock()
	return out
}

// getHealthyDeployments filters out deployments in cooldown. Groups with a
// single deployment skip the filter entirely.
func (r *BaseRouter) getHealthyDeployments(deployments []*ExtendedDeployment, statsByID map[string]*router.DeploymentStats) []*ExtendedDeployment {
	if len(deployments) <= 1 {
		return deployments
	}

	now := time.Now()
	healthy := make([]*ExtendedDeployment, 0, len(deployments))
	for _, d := range deployments {
		stats := statsByID[d.ID]
		if stats == nil || now.After(stats.CooldownUntil) {
			healthy = append(healthy, d)
		}
	}
	return healthy
}

func (r *BaseRouter) filterByTags(deployments []*ExtendedDeployment, tags []string) []*ExtendedDeployment {
	if len(tags) == 0 {
		defaults := make([]*ExtendedDeployment, 0)
		for _, d := range deployments {
			if containsTag(d.Config.Tags, "default") {
				defaults = append(defaults, d)
			}
		}
		if len(defaults) > 0 {
			return defaults
		}
		return deployments
	}

	matched := make([]*ExtendedDeployment, 0)
	defaults := make([]*ExtendedDeployment, 0)

	for _, d := range deployments {
		if len(d.Config.Tags) == 0 {
			continue
		}
		if hasMatchingTag(d.Config.Tags, tags) {
			matched = append(matched, d)
		}
		if containsTag(d.Config.Tags, "default") {
			defaults = append(defaults, d)
		}
	}

	if len(matched) > 0 {
		return matched
	}
	if len(defaults) > 0 {
		return defaults
	}
	return nil
}

func (r *BaseRouter) filterByTPMRPM(deployments []*ExtendedDeployment, statsByID map[string]*router.DeploymentStats, inputTokens int) []*ExtendedDeployment {
	filtered := make([]*ExtendedDeployment, 0, len(deployments))

	for _, d := range deployments {
		stats := statsByID[d.ID]
		if stats == nil {
			filtered = append(filtered, d)
			continue
		}

		if d.Config.TPMLimit > 0 && stats.CurrentMinuteTPM+int64(inputTokens) > d.Config.TPMLimit {
			continue
		}

		if d.Config.RPMLimit > 0 && stats.CurrentMinuteRPM+1 > d.Config.RPMLimit {
			continue
		}

		filtered = append(filtered, d)
	}

	return filtered
}

// filterByDefaultProvider prefers deployments from the configured default
// provider, falling back to the full set when none survive the earlier
// filters.
func (r *BaseRouter) filterByDefaultProvider(deployments []*ExtendedDeployment) []*ExtendedDeployment {
	if r.config.DefaultProvider == "" {
		return deployments
	}

	preferred := make([]*ExtendedDeployment, 0, len(deployments))
	for _, d := range deployments {
		if d.ProviderName == r.config.DefaultProvider {
			preferred = append(preferred, d)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return deployments
}

func (r *BaseRouter) newStatsEntry() *statsEntry {
	alpha := r.ewmaAlpha()
	return &statsEntry{
		MaxLatencyListSize: r.config.MaxLatencyListSize,
		LatencyHistory:     make([]float64, 0, r.config.MaxLatencyListSize),
		TTFTHistory:        make([]float64, 0, r.config.MaxLatencyListSize),
		ewmaLatency:        NewEWMA(alpha),
		ewmaSuccess:        NewEWMA(alpha),
	}
}

func (r *BaseRouter) getOrCreateStats(deploymentID string) *statsEntry {
	stats, ok := r.stats[deploymentID]
	if !ok {
		stats = r.newStatsEntry()
		r.stats[deploymentID] = stats
	}
	return stats
}

// localStatsLocked returns a copy of the node-local stats. Caller holds r.mu.
func (r *BaseRouter) localStatsLocked(deploymentID string) *router.DeploymentStats {
	stats, ok := r.stats[deploymentID]
	if !ok {
		return nil
	}
	return &router.DeploymentStats{
		TotalRequests:       stats.TotalRequests,
		SuccessCount:        stats.SuccessCount,
		FailureCount:        stats.FailureCount,
		ActiveRequests:      stats.ActiveRequests,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		LatencyHistory:      append([]float64(nil), stats.LatencyHistory...),
		TTFTHistory:         append([]float64(nil), stats.TTFTHistory...),
		AvgLatencyMs:        stats.AvgLatencyMs,
		AvgTTFTMs:           stats.AvgTTFTMs,
		MaxLatencyListSize:  stats.MaxLatencyListSize,
		CurrentMinuteTPM:    stats.CurrentMinuteTPM,
		CurrentMinuteRPM:    stats.CurrentMinuteRPM,
		CurrentMinuteKey:    stats.CurrentMinuteKey,
		LastRequestTime:     stats.LastRequestTime,
		CooldownUntil:       stats.CooldownUntil,
		EWMALatencyMs:       stats.ewmaLatency.Value(),
		EWMASuccessRate:     stats.ewmaSuccess.Value(),
	}
}

// overlayLocalLocked copies the node-local moving averages onto store-backed
// stats. Caller holds r.mu.
func (r *BaseRouter) overlayLocalLocked(deploymentID string, stats *router.DeploymentStats) {
	local, ok := r.stats[deploymentID]
	if !ok {
		return
	}
	stats.EWMALatencyMs = local.ewmaLatency.Value()
	stats.EWMASuccessRate = local.ewmaSuccess.Value()
}

func (r *BaseRouter) appendToHistory(history *[]float64, value float64, maxSize int) {
	if maxSize <= 0 {
		maxSize = 10
	}
	if len(*history) < maxSize {
		*history = append(*history, value)
	} else {
		copy((*history)[0:], (*history)[1:])
		(*history)[len(*history)-1] = value
	}
}

func (r *BaseRouter) updateUsageStats(stats *statsEntry, tokens int) {
	currentMinute := minuteKey(time.Now())

	if stats.CurrentMinuteKey != currentMinute {
		stats.CurrentMinuteKey = currentMinute
		stats.CurrentMinuteTPM = 0
		stats.CurrentMinuteRPM = 0
	}

	stats.CurrentMinuteTPM += int64(tokens)
	stats.CurrentMinuteRPM++
}

func calculateAverageLatency(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	return sum / float64(len(history))
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func hasMatchingTag(deploymentTags, requestTags []string) bool {
	for _, dt := range deploymentTags {
		for _, rt := range requestTags {
			if dt == rt {
				return true
			}
		}
	}
	return false
}

// Pick implements basic random selection (used as fallback).
func (r *BaseRouter) Pick(ctx context.Context, model string) (*provider.Deployment, error) {
	return r.PickWithContext(ctx, &router.RequestContext{Model: model})
}

// PickWithContext implements basic random selection with context.
func (r *BaseRouter) PickWithContext(ctx context.Context, reqCtx *router.RequestContext) (*provider.Deployment, error) {
	deployments := r.snapshotDeployments(reqCtx.Model)
	if len(deployments) == 0 {
		return nil, ErrNoAvailableDeployment
	}
	statsByID := r.statsSnapshot(ctx, deployments)
	healthy := r.getHealthyDeployments(deployments, statsByID)
	if len(healthy) == 0 {
		return nil, ErrNoAvailableDeployment
	}

	if r.config.EnableTagFiltering && len(reqCtx.Tags) > 0 {
		healthy = r.filterByTags(healthy, reqCtx.Tags)
		if len(healthy) == 0 {
			return nil, ErrNoDeploymentsWithTag
		}
	}

	if reqCtx.EstimatedInputTokens > 0 {
		healthy = r.filterByTPMRPM(healthy, statsByID, reqCtx.EstimatedInputTokens)
		if len(healthy) == 0 {
			return nil, ErrNoAvailableDeployment
		}
	}

	healthy = r.filterByDefaultProvider(healthy)
	return healthy[r.randIntn(len(healthy))].Deployment, nil
}
