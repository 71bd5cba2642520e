package healthcheck

import (
	"sort"
	"time"

	"github.com/BerriAI/litellm-go/pkg/provider"
)

// EndpointStatus is the latest probe result for one deployment.
type EndpointStatus struct {
	DeploymentID string    `json:"deployment_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Healthy      bool      `json:"healthy"`
	Error        string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Snapshot partitions the probed deployments by their last probe result.
type Snapshot struct {
	Healthy   []EndpointStatus
	Unhealthy []EndpointStatus
}

func (p *Prober) recordStatus(deployment *provider.Deployment, probeErr error) {
	status := EndpointStatus{
		DeploymentID: deployment.ID,
		Provider:     deployment.ProviderName,
		Model:        deployment.ModelName,
		Healthy:      probeErr == nil,
		CheckedAt:    time.Now(),
	}
	if probeErr != nil {
		status.Error = probeErr.Error()
	}

	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if p.statuses == nil {
		p.statuses = make(map[string]EndpointStatus)
	}
	p.statuses[deployment.ID] = status
}

// Snapshot returns the most recent probe result per deployment, ordered
// by model then deployment ID for stable output.
func (p *Prober) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}

	p.statusMu.RLock()
	statuses := make([]EndpointStatus, 0, len(p.statuses))
	for _, status := range p.statuses {
		statuses = append(statuses, status)
	}
	p.statusMu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Model != statuses[j].Model {
			return statuses[i].Model < statuses[j].Model
		}
		return statuses[i].DeploymentID < statuses[j].DeploymentID
	})

	var snap Snapshot
	for _, status := range statuses {
		if status.Healthy {
			snap.Healthy = append(snap.Healthy, status)
		} else {
			snap.Unhealthy = append(snap.Unhealthy, status)
		}
	}
	return snap
}
