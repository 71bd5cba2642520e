package litellm

import (
	"sort"

	"github.com/BerriAI/litellm-go/pkg/pricing"
)

// DeploymentInfo describes one configured deployment for the discovery
// endpoints. Pricing is nil when the model has no pricing entry.
type DeploymentInfo struct {
	ModelName     string
	Provider      string
	DeploymentID  string
	BaseURL       string
	MaxConcurrent int
	Pricing       *pricing.ModelPrice
}

// DeploymentInfos returns every configured deployment with its pricing,
// sorted by model name then provider.
func (c *Client) DeploymentInfos() []DeploymentInfo {
	registry := c.pricing
	if registry == nil {
		registry = defaultPricing()
	}

	c.mu.RLock()
	infos := make([]DeploymentInfo, 0, len(c.deployments))
	for model, deps := range c.deployments {
		for _, dep := range deps {
			info := DeploymentInfo{
				ModelName:     model,
				Provider:      dep.ProviderName,
				DeploymentID:  dep.ID,
				BaseURL:       dep.BaseURL,
				MaxConcurrent: dep.MaxConcurrent,
			}
			if price, ok := registry.GetPrice(model, dep.ProviderName); ok {
				p := price
				info.Pricing = &p
			}
			infos = append(infos, info)
		}
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ModelName != infos[j].ModelName {
			return infos[i].ModelName < infos[j].ModelName
		}
		return infos[i].Provider < infos[j].Provider
	})
	return infos
}
