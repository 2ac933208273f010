package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/omnichat/internal/version"
)

// Profile is configuration to start main server.
type Profile struct {
	// Server configuration
	Mode    string
	Addr    string
	Port    int
	Data    string
	Driver  string
	DSN     string
	Version string

	// Chat pipeline configuration
	ContextWindow      int     // Prior messages included in each prompt (default: 10)
	SystemPrompt       string  // Persona prepended to every prompt (empty: built-in default)
	ProviderTimeout    int     // Per-candidate timeout in seconds (default: 30)
	MaxTokens          int     // Response length cap (default: 1000)
	Temperature        float32 // Sampling temperature (default: 0.7)
	MaxConcurrentChats int     // Chat turns running at once (default: 16)
	RateLimit          float64 // Requests per second per client IP (default: 10)
	RateBurst          int     // Burst size for RateLimit (default: 20)

	// Providers holds every vendor with a configured credential, in fallback order.
	Providers []ProviderProfile
}

// ProviderProfile is one vendor's credential and candidate models.
type ProviderProfile struct {
	Name    string
	APIKey  string
	BaseURL string
	// Models are tried in order before moving to the next vendor.
	Models []string
}

// Vendor defaults. KeyEnv is the vendor's conventional credential variable,
// consulted when OMNICHAT_<NAME>_API_KEY is unset.
var providerDefaults = map[string]struct {
	KeyEnv string
	Models []string
}{
	"openai": {
		KeyEnv: "OPENAI_API_KEY",
		Models: []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"},
	},
	"anthropic": {
		KeyEnv: "ANTHROPIC_API_KEY",
		Models: []string{"claude-3-5-sonnet-latest"},
	},
	"gemini": {
		KeyEnv: "GEMINI_API_KEY",
		Models: []string{"gemini-2.0-flash"},
	},
	"grok": {
		KeyEnv: "XAI_API_KEY",
		Models: []string{"grok-2-latest"},
	},
	"openrouter": {
		KeyEnv: "OPENROUTER_API_KEY",
		Models: []string{"openai/gpt-4o-mini"},
	},
	"zai": {
		KeyEnv: "ZAI_API_KEY",
		Models: []string{"glm-4.5"},
	},
}

// DefaultProviderOrder is the fallback order when OMNICHAT_PROVIDER_ORDER is unset.
const DefaultProviderOrder = "openai,anthropic,gemini,grok,openrouter,zai"

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if at least one provider has a credential.
func (p *Profile) IsAIEnabled() bool {
	return len(p.Providers) > 0
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FromEnv loads the chat and provider configuration from environment variables.
func (p *Profile) FromEnv() {
	p.ContextWindow = getEnvOrDefaultInt("OMNICHAT_CONTEXT_WINDOW", 10)
	p.SystemPrompt = getEnvOrDefault("OMNICHAT_SYSTEM_PROMPT", "")
	p.ProviderTimeout = getEnvOrDefaultInt("OMNICHAT_PROVIDER_TIMEOUT_SECONDS", 30)
	p.MaxTokens = getEnvOrDefaultInt("OMNICHAT_MAX_TOKENS", 1000)
	p.Temperature = float32(getEnvOrDefaultFloat("OMNICHAT_TEMPERATURE", 0.7))
	p.MaxConcurrentChats = getEnvOrDefaultInt("OMNICHAT_MAX_CONCURRENT_CHATS", 16)
	p.RateLimit = getEnvOrDefaultFloat("OMNICHAT_RATE_LIMIT", 10)
	p.RateBurst = getEnvOrDefaultInt("OMNICHAT_RATE_BURST", 20)

	p.Providers = nil
	seen := map[string]bool{}
	for _, name := range splitList(getEnvOrDefault("OMNICHAT_PROVIDER_ORDER", DefaultProviderOrder)) {
		name = strings.ToLower(name)
		defaults, ok := providerDefaults[name]
		if !ok {
			slog.Warn("Unknown provider in OMNICHAT_PROVIDER_ORDER, skipping", "provider", name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		prefix := "OMNICHAT_" + strings.ToUpper(name) + "_"
		apiKey := getEnvOrDefault(prefix+"API_KEY", os.Getenv(defaults.KeyEnv))
		if apiKey == "" {
			slog.Debug("Provider has no credential, excluded from routing", "provider", name)
			continue
		}

		models := splitList(os.Getenv(prefix + "MODELS"))
		if len(models) == 0 {
			models = append([]string(nil), defaults.Models...)
		}

		p.Providers = append(p.Providers, ProviderProfile{
			Name:    name,
			APIKey:  apiKey,
			BaseURL: os.Getenv(prefix + "BASE_URL"),
			Models:  models,
		})
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Version != "" && !version.IsValid(p.Version) {
		return errors.Errorf("invalid build version %q: not a semantic version", p.Version)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "omnichat")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/omnichat"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("omnichat_%s.db", p.Mode))
		}
	case "bolt":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("omnichat_%s.bolt", p.Mode))
		}
	case "postgres", "mysql":
		if p.DSN == "" {
			return errors.Errorf("dsn is required for driver %s", p.Driver)
		}
	default:
		return errors.Errorf("unsupported driver: %s", p.Driver)
	}

	if p.ContextWindow <= 0 {
		p.ContextWindow = 10
	}
	if p.ProviderTimeout <= 0 {
		p.ProviderTimeout = 30
	}
	if p.MaxConcurrentChats <= 0 {
		p.MaxConcurrentChats = 16
	}

	return nil
}
