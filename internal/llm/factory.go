package llm

import (
	"fmt"
	"log"

	"github.com/scrypster/perspective/internal/config"
)

// NewBatchGenerator creates a batch generator from the configured provider.
func NewBatchGenerator(cfg config.LLMConfig) (BatchGenerator, error) {
	switch cfg.Provider {
	case "ollama", "":
		client := NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
		})
		log.Printf("Using Ollama provider with model %s", client.GetModel())
		return client, nil

	case "openai":
		client, err := NewOpenAIClient(OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Using OpenAI provider with model %s", client.GetModel())
		return client, nil

	case "anthropic":
		client, err := NewAnthropicClient(AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Using Anthropic provider with model %s", client.GetModel())
		return client, nil

	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}
