package llm

import (
	"fmt"
	"net/http"

	"github.com/aiox-platform/gloser/internal/config"
)

// New builds the configured collaborator. When cfg.Serialize is set the
// handle is wrapped with its own lock.
func New(cfg config.LLMConfig) (Completer, error) {
	hc := &http.Client{Timeout: cfg.Timeout}

	var c Completer
	switch cfg.Provider {
	case "openai":
		c = NewOpenAI(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			HTTPClient: hc,
		})
	case "anthropic":
		c = NewAnthropic(AnthropicOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			HTTPClient: hc,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	if cfg.Serialize {
		return Serialize(c), nil
	}
	return c, nil
}
