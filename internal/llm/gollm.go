package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmClient adapts a gollm.LLM instance to the Client interface.
type GollmClient struct {
	llm       gollm.LLM
	maxTokens int
}

// GollmOptions configures a GollmClient.
type GollmOptions struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// NewGollmClient creates a Client backed by the given provider. If APIKey
// is empty, gollm reads it from the provider's environment variable.
func NewGollmClient(opts GollmOptions) (*GollmClient, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(opts.Provider),
		gollm.SetMaxTokens(opts.MaxTokens),
		gollm.SetTemperature(opts.Temperature),
		gollm.SetMaxRetries(0), // retries are handled by CompleteWithRetry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if opts.Model != "" {
		gollmOpts = append(gollmOpts, gollm.SetModel(opts.Model))
	}
	if opts.APIKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(opts.APIKey))
	}

	backend, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm client for provider %s: %w", opts.Provider, err)
	}

	return &GollmClient{llm: backend, maxTokens: opts.MaxTokens}, nil
}

// Complete sends a blocking completion request.
func (c *GollmClient) Complete(ctx context.Context, req Request) (*Response, error) {
	promptOpts := []gollm.PromptOption{
		gollm.WithMaxLength(c.maxTokens),
	}
	if req.SystemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(req.SystemPrompt), gollm.CacheTypeEphemeral))
	}

	prompt := gollm.NewPrompt(req.Prompt, promptOpts...)

	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TransportError{Message: "completion cancelled", Cause: err}
		}
		return nil, &TransportError{Message: "completion failed", Retryable: true, Cause: err}
	}

	return &Response{
		Text:  text,
		Usage: estimateUsage(req, text),
	}, nil
}

// estimateUsage approximates token consumption from character counts.
// gollm's Generate does not surface provider usage, so budget tracking
// works from a conservative 4-chars-per-token estimate.
func estimateUsage(req Request, text string) Usage {
	return Usage{
		InputTokens:  (len(req.SystemPrompt) + len(req.Prompt)) / 4,
		OutputTokens: len(text) / 4,
	}
}

// Ensure GollmClient implements Client.
var _ Client = (*GollmClient)(nil)
