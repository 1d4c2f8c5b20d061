package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.7
)

// Provider implements the completion provider interface over Google's Gemini API
type Provider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewProvider creates a new Gemini provider
func NewProvider(ctx context.Context, apiKey, baseURL, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Provider{
		client:      client,
		model:       model,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns the configured model name
func (p *Provider) Model() string {
	return p.model
}

// Complete generates content for a single user prompt
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx,
		p.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(p.temperature),
			MaxOutputTokens: p.maxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	zap.L().Debug("gemini completion finished",
		zap.String("model", p.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int("candidates", len(resp.Candidates)))

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini generate content: empty response")
	}
	return text, nil
}
