// Package providers provides a unified registry for all built-in provider implementations.
// It allows automatic provider creation from configuration.
package providers

import (
	"fmt"
	"sync"

	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/providers/ai21"
	"github.com/BerriAI/litellm-go/providers/anthropic"
	"github.com/BerriAI/litellm-go/providers/azure"
	"github.com/BerriAI/litellm-go/providers/bedrock"
	"github.com/BerriAI/litellm-go/providers/cerebras"
	"github.com/BerriAI/litellm-go/providers/cohere"
	"github.com/BerriAI/litellm-go/providers/databricks"
	"github.com/BerriAI/litellm-go/providers/deepinfra"
	"github.com/BerriAI/litellm-go/providers/deepseek"
	"github.com/BerriAI/litellm-go/providers/fireworks"
	"github.com/BerriAI/litellm-go/providers/gemini"
	"github.com/BerriAI/litellm-go/providers/groq"
	"github.com/BerriAI/litellm-go/providers/huggingface"
	"github.com/BerriAI/litellm-go/providers/hyperbolic"
	"github.com/BerriAI/litellm-go/providers/mistral"
	"github.com/BerriAI/litellm-go/providers/moonshot"
	"github.com/BerriAI/litellm-go/providers/ollama"
	"github.com/BerriAI/litellm-go/providers/openai"
	"github.com/BerriAI/litellm-go/providers/openrouter"
	"github.com/BerriAI/litellm-go/providers/perplexity"
	"github.com/BerriAI/litellm-go/providers/qwen"
	"github.com/BerriAI/litellm-go/providers/sambanova"
	"github.com/BerriAI/litellm-go/providers/siliconflow"
	"github.com/BerriAI/litellm-go/providers/together"
	"github.com/BerriAI/litellm-go/providers/vertexai"
	"github.com/BerriAI/litellm-go/providers/volcengine"
	"github.com/BerriAI/litellm-go/providers/zhipu"
)

var (
	registry     = make(map[string]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers a provider factory with the given type name.
func Register(providerType string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// Get returns the factory for the given provider type.
func Get(providerType string) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[providerType]
	return f, ok
}

// Create creates a provider instance from configuration.
func Create(cfg provider.Config) (provider.Provider, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s (available: %v)", cfg.Type, List())
	}

	return factory(cfg)
}

// List returns all registered provider type names.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers all built-in provider factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register("openai", openai.NewFromConfig)
		Register("anthropic", anthropic.NewFromConfig)
		Register("azure", azure.NewFromConfig)
		Register("bedrock", bedrock.NewFromConfig)
		Register("vertexai", vertexai.NewFromConfig)
		Register("gemini", gemini.NewFromConfig)
		Register("cohere", cohere.NewFromConfig)
		Register("groq", groq.NewFromConfig)
		Register("deepseek", deepseek.NewFromConfig)
		Register("together", together.NewFromConfig)
		Register("fireworks", fireworks.NewFromConfig)
		Register("mistral", mistral.NewFromConfig)
		Register("perplexity", perplexity.NewFromConfig)
		Register("openrouter", openrouter.NewFromConfig)
		Register("ollama", ollama.NewFromConfig)
		Register("huggingface", huggingface.NewFromConfig)
		Register("ai21", ai21.NewFromConfig)
		Register("cerebras", cerebras.NewFromConfig)
		Register("databricks", databricks.NewFromConfig)
		Register("deepinfra", deepinfra.NewFromConfig)
		Register("hyperbolic", hyperbolic.NewFromConfig)
		Register("moonshot", moonshot.NewFromConfig)
		Register("qwen", qwen.NewFromConfig)
		Register("sambanova", sambanova.NewFromConfig)
		Register("siliconflow", siliconflow.NewFromConfig)
		Register("volcengine", volcengine.NewFromConfig)
		Register("zhipu", zhipu.NewFromConfig)
	})
}

func init() {
	RegisterBuiltins()
}
