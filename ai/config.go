package ai

import (
	"errors"
	"fmt"
	"time"

	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	// Candidates are the vendor/model pairs in fallback order.
	Candidates []llm.Config
	Context    ContextConfig
	// ProviderTimeout bounds a single candidate call.
	ProviderTimeout time.Duration
	Enabled         bool
}

// ContextConfig represents prompt assembly configuration.
type ContextConfig struct {
	Window       int
	SystemPrompt string
}

// NewConfigFromProfile creates AI config from profile.
// Each configured model of each vendor becomes one candidate; a vendor's
// models are tried before the next vendor's.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
		Context: ContextConfig{
			Window:       p.ContextWindow,
			SystemPrompt: p.SystemPrompt,
		},
		ProviderTimeout: time.Duration(p.ProviderTimeout) * time.Second,
	}

	temperature := p.Temperature
	for _, vendor := range p.Providers {
		for _, model := range vendor.Models {
			cfg.Candidates = append(cfg.Candidates, llm.Config{
				Provider:    vendor.Name,
				Model:       model,
				APIKey:      vendor.APIKey,
				BaseURL:     vendor.BaseURL,
				MaxTokens:   p.MaxTokens,
				Temperature: &temperature,
			})
		}
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if len(c.Candidates) == 0 {
		return errors.New("at least one provider model is required")
	}

	for i, cand := range c.Candidates {
		if cand.Provider == "" {
			return fmt.Errorf("candidate %d: provider is required", i)
		}
		if cand.Model == "" {
			return fmt.Errorf("candidate %d (%s): model is required", i, cand.Provider)
		}
		if cand.APIKey == "" {
			return fmt.Errorf("candidate %d (%s): API key is required", i, cand.Provider)
		}
	}

	return nil
}
