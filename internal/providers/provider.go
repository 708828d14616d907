package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Request is a single completion request sent to a model backend.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON asks the backend for a JSON-only response where it supports one.
	JSON bool
}

// Response contains the raw text returned by a backend.
type Response struct {
	Content    string
	TokensUsed int
}

// Provider is the model backend abstraction. Implementations perform exactly
// one upstream request per Complete call; retries and timeouts belong to the
// caller.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
	Model() string
}

// Options configures backend construction. Empty fields fall back to the
// provider's environment variables and public endpoints.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a provider by name.
func New(ctx context.Context, provider, model string, opts Options) (Provider, error) {
	switch provider {
	case "anthropic":
		return NewAnthropic(model, opts)
	case "openai":
		return NewOpenAI(model, opts)
	case "gemini", "google":
		return NewGemini(ctx, model, opts)
	case "ollama", "lmstudio":
		return NewOllama(model, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
