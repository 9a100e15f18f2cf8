package application

import (
	"fmt"
	"net/http"

	"gitagent/cli/internal/agentloop"
	"gitagent/cli/internal/config"
)

// NewCompletionClient builds the provider client selected by cfg.Provider.
func NewCompletionClient(cfg config.Config, httpClient *http.Client) (agentloop.CompletionAPI, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return agentloop.NewAnthropicClient(agentloop.AnthropicConfig{
			BaseURL: cfg.AnthropicBaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.AnthropicAPIKey,
		}, httpClient)
	case config.ProviderOpenAI:
		return agentloop.NewResponsesClient(agentloop.OpenAIConfig{
			BaseURL: cfg.OpenAIEndpoint,
			Model:   cfg.Model,
			APIKey:  cfg.OpenAIAPIKey,
		}, httpClient)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", agentloop.ErrConfiguration, cfg.Provider)
	}
}
