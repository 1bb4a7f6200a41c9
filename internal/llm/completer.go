package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Completer is a hosted text-completion capability. Implementations return
// provider errors as opaque failures.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int32, temperature float32) (string, error)
}

// GeminiCompleter implements Completer on top of the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a Gemini client using application default
// credentials / GOOGLE_* environment settings.
func NewGeminiCompleter(ctx context.Context, model string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiCompleter: create genai client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

// Model returns the model name used for completions.
func (c *GeminiCompleter) Model() string {
	return c.model
}

// Complete sends a single user prompt and returns the model's text.
func (c *GeminiCompleter) Complete(ctx context.Context, prompt string, maxTokens int32, temperature float32) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	temp := temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: maxTokens,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("Complete: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Complete: empty response from model %s", c.model)
	}
	return text, nil
}

var _ Completer = (*GeminiCompleter)(nil)
