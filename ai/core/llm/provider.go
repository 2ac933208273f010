package llm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Provider is a single vendor/model pair able to produce a completion.
type Provider interface {
	// Name returns the vendor name, e.g. "openai".
	Name() string
	// Model returns the model identifier sent to the vendor.
	Model() string
	// Generate sends the ordered turns and returns the assistant text.
	// Failures are always *ProviderError.
	Generate(ctx context.Context, turns []Message) (string, *CallStats, error)
}

// Config represents provider configuration.
type Config struct {
	Provider    string // openai, anthropic, gemini, grok, openrouter, zai
	Model       string // gpt-4o-mini, claude-3-5-sonnet-latest, gemini-2.0-flash
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 1000
	Temperature *float32 // nil means 0.7; zero is honored
	Timeout     int     // HTTP client timeout in seconds (default: 60)
}

const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
	defaultTimeout     = 60
)

// OpenAI-compatible vendors and their default endpoints.
var compatibleBaseURLs = map[string]string{
	"openai":     "",
	"grok":       "https://api.x.ai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"zai":        "https://api.z.ai/api/paas/v4",
}

// SupportedProviders lists the vendor names NewProvider accepts.
func SupportedProviders() []string {
	return []string{"openai", "anthropic", "gemini", "grok", "openrouter", "zai"}
}

func (c *Config) temperature() float32 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

// NewProvider creates a Provider for cfg.Provider.
func NewProvider(ctx context.Context, cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("provider config is nil")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %q: model is required", cfg.Provider)
	}

	c := *cfg
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	httpClient := newHTTPClient(time.Duration(c.Timeout) * time.Second)

	switch c.Provider {
	case "anthropic":
		return newAnthropicProvider(&c, httpClient), nil
	case "gemini":
		return newGeminiProvider(ctx, &c, httpClient)
	default:
		baseURL, ok := compatibleBaseURLs[c.Provider]
		if !ok {
			return nil, fmt.Errorf("unsupported provider: %s", c.Provider)
		}
		if c.BaseURL == "" {
			c.BaseURL = baseURL
		}
		return newOpenAIProvider(&c, httpClient), nil
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
