package litellm

import (
	"context"
	"sync"

	"github.com/BerriAI/litellm-go/pkg/provider"
)

type deploymentCaptureKey struct{}

// DeploymentCapture records which deployment served a request. Install
// one with WithDeploymentCapture before a call; retries overwrite the
// value, so after the call it names the deployment that answered.
type DeploymentCapture struct {
	mu sync.Mutex
	id string
}

// ModelID returns the captured deployment ID, or "" when no pick happened.
func (d *DeploymentCapture) ModelID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

func (d *DeploymentCapture) record(id string) {
	d.mu.Lock()
	d.id = id
	d.mu.Unlock()
}

// WithDeploymentCapture installs a capture that receives the selected
// deployment ID for any client call made with the returned context.
func WithDeploymentCapture(ctx context.Context, capture *DeploymentCapture) context.Context {
	if capture == nil {
		return ctx
	}
	return context.WithValue(ctx, deploymentCaptureKey{}, capture)
}

func captureDeployment(ctx context.Context, deployment *provider.Deployment) {
	if ctx == nil || deployment == nil {
		return
	}
	if capture, ok := ctx.Value(deploymentCaptureKey{}).(*DeploymentCapture); ok {
		capture.record(deployment.ID)
	}
}
