package providers

import (
	"os"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/llm"
)

// Default API key environment variables per provider. A workflow can point
// a provider at a different variable via llm.api_key_env.
const (
	AnthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	OpenAIAPIKeyEnv    = "OPENAI_API_KEY"
)

// Client-side request budget for hosted providers, kept well under the
// entry-tier API quotas. Ollama runs locally and is not limited.
const (
	hostedRequestsPerSecond = 2
	hostedBurst             = 4
)

// NewRegistryFromEnv builds a provider registry from the environment,
// honoring api_key_env overrides declared in the workflow. Providers whose
// credentials are absent are simply not registered; ollama needs none and
// is always available. Hosted providers are wrapped with a client-side
// rate limiter so workflow bursts stay under API quotas.
func NewRegistryFromEnv(cfg *config.WorkflowConfig) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	anthropicEnv := AnthropicAPIKeyEnv
	openaiEnv := OpenAIAPIKeyEnv
	if override := apiKeyEnvOverride(cfg, "anthropic"); override != "" {
		anthropicEnv = override
	}
	if override := apiKeyEnvOverride(cfg, "openai"); override != "" {
		openaiEnv = override
	}

	if key := os.Getenv(anthropicEnv); key != "" {
		p, err := NewAnthropicProvider(key)
		if err != nil {
			return nil, err
		}
		registry.Register(llm.NewRateLimitedProvider(p, hostedRequestsPerSecond, hostedBurst))
	}

	if key := os.Getenv(openaiEnv); key != "" {
		p, err := NewOpenAIProvider(key)
		if err != nil {
			return nil, err
		}
		registry.Register(llm.NewRateLimitedProvider(p, hostedRequestsPerSecond, hostedBurst))
	}

	ollama, err := NewOllamaProvider()
	if err != nil {
		return nil, err
	}
	registry.Register(ollama)

	return registry, nil
}

// apiKeyEnvOverride finds an api_key_env declared for the named provider,
// checking the global block first and then node overrides.
func apiKeyEnvOverride(cfg *config.WorkflowConfig, provider string) string {
	if cfg == nil {
		return ""
	}
	if cfg.Global != nil && cfg.Global.LLM != nil &&
		cfg.Global.LLM.Provider == provider && cfg.Global.LLM.APIKeyEnv != "" {
		return cfg.Global.LLM.APIKeyEnv
	}
	for _, node := range cfg.Nodes {
		if node.LLM != nil && node.LLM.Provider == provider && node.LLM.APIKeyEnv != "" {
			return node.LLM.APIKeyEnv
		}
	}
	return ""
}
