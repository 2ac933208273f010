// Package ai wires the chat pipeline from configuration.
package ai

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/omnichat/ai/core/llm"
	"github.com/hrygo/omnichat/ai/router"
)

// NewProviders creates one llm.Provider per candidate, in order.
func NewProviders(ctx context.Context, cfg *Config) ([]llm.Provider, error) {
	providers := make([]llm.Provider, 0, len(cfg.Candidates))
	for i := range cfg.Candidates {
		cand := cfg.Candidates[i]
		if cfg.ProviderTimeout > 0 {
			// The HTTP client must not cut a call shorter than the router does.
			cand.Timeout = int(cfg.ProviderTimeout.Seconds()) + 5
		}
		p, err := llm.NewProvider(ctx, &cand)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider %s/%s", cand.Provider, cand.Model)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// NewRouter builds the fallback router for cfg. A disabled config yields a
// router with no candidates, which fails every call as unavailable.
func NewRouter(ctx context.Context, cfg *Config, observer router.Observer) (*router.Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI config")
	}

	providers, err := NewProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		slog.Warn("ai: no provider credentials configured, chat requests will fail")
	}

	opts := []router.Option{router.WithTimeout(cfg.ProviderTimeout)}
	if observer != nil {
		opts = append(opts, router.WithObserver(observer))
	}
	for i, p := range providers {
		slog.Debug("ai: provider candidate", "position", i, "provider", p.Name(), "model", p.Model())
	}
	return router.New(providers, opts...), nil
}
