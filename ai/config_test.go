package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/omnichat/internal/profile"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		ContextWindow:   10,
		ProviderTimeout: 30,
		MaxTokens:       1000,
		Temperature:     0.7,
		Providers: []profile.ProviderProfile{
			{Name: "openai", APIKey: "sk-openai", Models: []string{"gpt-4o-mini", "gpt-4o"}},
			{Name: "anthropic", APIKey: "sk-ant", Models: []string{"claude-3-5-sonnet-latest"}},
		},
	}
}

func TestNewConfigFromProfile(t *testing.T) {
	cfg := NewConfigFromProfile(testProfile())

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 10, cfg.Context.Window)

	require.Len(t, cfg.Candidates, 3)
	order := make([]string, 0, len(cfg.Candidates))
	for _, c := range cfg.Candidates {
		order = append(order, c.Provider+"/"+c.Model)
		assert.Equal(t, 1000, c.MaxTokens)
	}
	assert.Equal(t, []string{"openai/gpt-4o-mini", "openai/gpt-4o", "anthropic/claude-3-5-sonnet-latest"}, order)
	assert.Equal(t, "sk-ant", cfg.Candidates[2].APIKey)
}

func TestNewConfigFromProfile_NoProviders(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{})
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Candidates)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := NewConfigFromProfile(testProfile())
	require.NoError(t, cfg.Validate())

	cfg.Candidates[1].APIKey = ""
	assert.ErrorContains(t, cfg.Validate(), "API key is required")

	cfg.Candidates = nil
	assert.Error(t, cfg.Validate())
}

func TestNewRouter(t *testing.T) {
	r, err := NewRouter(context.Background(), NewConfigFromProfile(testProfile()), nil)
	require.NoError(t, err)

	cands := r.Candidates()
	require.Len(t, cands, 3)
	assert.Equal(t, "openai", cands[0].Name())
	assert.Equal(t, "gpt-4o", cands[1].Model())
	assert.Equal(t, "anthropic", cands[2].Name())
}

func TestNewRouter_UnsupportedProvider(t *testing.T) {
	p := testProfile()
	p.Providers[0].Name = "nope"

	_, err := NewRouter(context.Background(), NewConfigFromProfile(p), nil)
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestNewConfigFromProfile_ZeroTemperature(t *testing.T) {
	p := testProfile()
	p.Temperature = 0

	cfg := NewConfigFromProfile(p)
	for _, c := range cfg.Candidates {
		require.NotNil(t, c.Temperature)
		assert.Zero(t, *c.Temperature)
	}
}
