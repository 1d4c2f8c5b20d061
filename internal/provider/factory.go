package provider

import (
	"context"
	"fmt"

	"github.com/cexll/gamegen/internal/provider/gemini"
	"github.com/cexll/gamegen/internal/provider/openai"
)

// Config contains provider configuration
type Config struct {
	// Provider name: "openai" or "gemini"
	Name string

	// OpenAI configuration
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Gemini configuration
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
}

// NewProvider creates a provider based on configuration
func NewProvider(ctx context.Context, cfg *Config) (Provider, error) {
	switch cfg.Name {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY is required")
		}
		return openai.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil

	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini: GEMINI_API_KEY is required")
		}
		p, err := gemini.NewProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: openai, gemini)", cfg.Name)
	}
}
