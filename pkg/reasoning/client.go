package reasoning

import (
	"context"
	"fmt"

	"github.com/signalmusic/conductor/pkg/session"
)

// ActionSchema describes one declared action the engine may request. The
// input schema is a JSON-Schema object; it is presented to the engine
// verbatim and never enforced here.
type ActionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Outcome is the terminal result of one engine call: either a final answer
// or a non-empty set of requested actions.
type Outcome struct {
	Text     string
	Requests []session.ActionRequest
}

// Pending reports whether the engine requested actions instead of answering
func (o *Outcome) Pending() bool {
	return len(o.Requests) > 0
}

// Options configure a single engine call
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is the stateless reasoning engine adapter. Implementations hold no
// session-affine state between calls.
type Client interface {
	// Converse sends the conversation and returns the terminal outcome
	Converse(ctx context.Context, history []session.Message, actions []ActionSchema, policy string) (*Outcome, error)

	// ConverseStream performs the same call but delivers text fragments
	// incrementally. The returned stream is finite and non-restartable;
	// fragments arrive in generation order.
	ConverseStream(ctx context.Context, history []session.Message, actions []ActionSchema, policy string) (*Stream, error)

	// Provider returns the provider name
	Provider() string
}

// Factory creates reasoning clients by provider name
type Factory struct{}

// Config holds provider construction parameters
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Options  Options
}

// NewClient creates a reasoning client for the configured provider
func (f *Factory) NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Options), nil
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
