package routers

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/router"
)

func TestShuffleRouter_Pick_UnweightedUniform(t *testing.T) {
	r := NewShuffleRouter()
	r.rng = rand.New(rand.NewSource(7))

	r.AddDeployment(&provider.Deployment{ID: "dep-a", ModelName: "gpt-4"})
	r.AddDeployment(&provider.Deployment{ID: "dep-b", ModelName: "gpt-4"})

	ctx := context.Background()
	counts := map[string]int{}
	const picks = 3000
	for i := 0; i < picks; i++ {
		dep, err := r.Pick(ctx, "gpt-4")
		require.NoError(t, err)
		counts[dep.ID]++
	}

	// Without weights both deployments should land near 50/50.
	assert.InDelta(t, picks/2, counts["dep-a"], float64(picks)*0.05)
	assert.InDelta(t, picks/2, counts["dep-b"], float64(picks)*0.05)
}

func TestShuffleRouter_Pick_ConvergesToWeights(t *testing.T) {
	r := NewShuffleRouter()
	r.rng = rand.New(rand.NewSource(42))

	r.AddDeploymentWithConfig(
		&provider.Deployment{ID: "dep-heavy", ModelName: "gpt-4"},
		router.DeploymentConfig{Weight: 2},
	)
	r.AddDeploymentWithConfig(
		&provider.Deployment{ID: "dep-light", ModelName: "gpt-4"},
		router.DeploymentConfig{Weight: 1},
	)

	ctx := context.Background()
	counts := map[string]int{}
	const picks = 3000
	for i := 0; i < picks; i++ {
		dep, err := r.Pick(ctx, "gpt-4")
		require.NoError(t, err)
		counts[dep.ID]++
	}

	// 2:1 weights should yield roughly 2000/1000 within ±3%.
	assert.InDelta(t, 2000, counts["dep-heavy"], float64(picks)*0.03)
	assert.InDelta(t, 1000, counts["dep-light"], float64(picks)*0.03)
}

func TestShuffleRouter_Pick_RPMWeightsFallback(t *testing.T) {
	r := NewShuffleRouter()
	r.rng = rand.New(rand.NewSource(11))

	// No explicit weights; rpm limits act as the weighting signal.
	r.AddDeploymentWithConfig(
		&provider.Deployment{ID: "dep-big", ModelName: "gpt-4"},
		router.DeploymentConfig{RPMLimit: 3000},
	)
	r.AddDeploymentWithConfig(
		&provider.Deployment{ID: "dep-small", ModelName: "gpt-4"},
		router.DeploymentConfig{RPMLimit: 1000},
	)

	ctx := context.Background()
	counts := map[string]int{}
	const picks = 2000
	for i := 0; i < picks; i++ {
		dep, err := r.Pick(ctx, "gpt-4")
		require.NoError(t, err)
		counts[dep.ID]++
	}

	assert.Greater(t, counts["dep-big"], counts["dep-small"]*2,
		"rpm-weighted picks should favor the larger deployment")
}

func TestShuffleRouter_Pick_ShiftsToSurvivorAfterCooldown(t *testing.T) {
	config := router.DefaultConfig()
	config.CooldownPeriod = 5 * time.Minute
	r := NewShuffleRouterWithConfig(config)
	r.rng = rand.New(rand.NewSource(3))

	failing := &provider.Deployment{ID: "dep-failing", ModelName: "gpt-4"}
	survivor := &provider.Deployment{ID: "dep-survivor", ModelName: "gpt-4"}
	r.AddDeployment(failing)
	r.AddDeployment(survivor)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		r.ReportFailure(ctx, failing, llmerrors.NewServiceUnavailableError("openai", "gpt-4", "overloaded"))
	}
	require.True(t, r.IsCircuitOpen(failing), "six consecutive 503s should cool the deployment down")

	for i := 0; i < 20; i++ {
		dep, err := r.Pick(ctx, "gpt-4")
		require.NoError(t, err)
		assert.Equal(t, "dep-survivor", dep.ID, "all traffic should land on the survivor")
	}
}

func TestShuffleRouter_Pick_NoDeployments(t *testing.T) {
	r := NewShuffleRouter()
	_, err := r.Pick(context.Background(), "missing-model")
	assert.ErrorIs(t, err, ErrNoAvailableDeployment)
}
