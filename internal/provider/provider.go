package provider

import "context"

// Provider is the interface that all completion providers must implement
type Provider interface {
	// Complete sends a single prompt and returns the generated text
	Complete(ctx context.Context, prompt string) (string, error)

	// Name returns the provider name
	Name() string
}
