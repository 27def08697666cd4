package completion

import (
	"fmt"

	"github.com/zulandar/coinchat/internal/config"
	"github.com/zulandar/coinchat/internal/exchange"
	"go.uber.org/zap"
)

// FromConfig builds the completer selected by cfg.Provider.
func FromConfig(cfg config.AIConfig, logger *zap.Logger) (exchange.Completer, error) {
	switch cfg.Provider {
	case "mock":
		return NewMock(cfg.Name), nil
	case "openai", "":
		return NewOpenAI(OpenAIOpts{
			APIKey:        cfg.APIKey(),
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			AssistantName: cfg.Name,
			SystemPrompt:  cfg.SystemPrompt,
			Timeout:       cfg.Timeout(),
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("completion: unsupported provider %q", cfg.Provider)
	}
}
