package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	DefaultModel       = "gpt-4"
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.7
)

// Provider implements the completion provider interface over the OpenAI chat completions API
type Provider struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewProvider creates a new OpenAI provider. Extra request options are appended
// after the API key and base URL.
func NewProvider(apiKey, baseURL, model string, extra ...option.RequestOption) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// Model returns the configured model name
func (p *Provider) Model() string {
	return p.model
}

// Complete performs one chat completion and returns the first choice's content
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(p.maxTokens),
		Temperature: openai.Float(p.temperature),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices in response")
	}

	content := resp.Choices[0].Message.Content
	zap.L().Debug("openai completion finished",
		zap.String("model", p.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)))

	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("openai chat completion: empty content")
	}
	return content, nil
}
