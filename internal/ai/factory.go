package ai

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/feedwise/analysis-back/internal/domain"
)

// FactoryConfig carries the environment-default credentials per vendor and
// the process-wide outbound rate budget.
type FactoryConfig struct {
	DefaultProvider string
	OpenAI          OpenAIClientConfig
	OpenRouter      OpenRouterClientConfig
	RateRPS         float64
	RateBurst       int
}

// Factory builds Provider instances keyed on a provider-name string. One
// limiter per vendor is shared across all built providers, so per-user
// credentials never multiply the process's request budget.
type Factory struct {
	config FactoryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFactory(config FactoryConfig) *Factory {
	if strings.TrimSpace(config.DefaultProvider) == "" {
		config.DefaultProvider = "openai"
	}
	if config.RateRPS <= 0 {
		config.RateRPS = 2
	}
	if config.RateBurst <= 0 {
		config.RateBurst = 4
	}
	return &Factory{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// HasCredentials reports whether the named vendor can be used with the
// environment defaults. The model router validates against this at startup.
func (f *Factory) HasCredentials(name string) bool {
	switch normalizeProviderName(name) {
	case "openai":
		return strings.TrimSpace(f.config.OpenAI.APIKey) != ""
	case "openrouter":
		return strings.TrimSpace(f.config.OpenRouter.APIKey) != ""
	default:
		return false
	}
}

// Provider builds a capability provider for the named vendor using
// environment-default credentials.
func (f *Factory) Provider(name string) (Provider, error) {
	return f.build(normalizeProviderName(name), "", "")
}

// ForUser builds a provider honoring the user's configuration. A nil config
// or blank provider falls back to the environment default vendor; user API
// key and base URL override the defaults for that vendor.
func (f *Factory) ForUser(userConfig *domain.UserProviderConfig) (Provider, error) {
	name := f.config.DefaultProvider
	apiKey := ""
	baseURL := ""
	if userConfig != nil {
		if strings.TrimSpace(userConfig.Provider) != "" {
			name = userConfig.Provider
		}
		apiKey = userConfig.APIKey
		baseURL = userConfig.BaseURL
	}
	return f.build(normalizeProviderName(name), apiKey, baseURL)
}

func (f *Factory) build(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "openai":
		clientConfig := f.config.OpenAI
		if strings.TrimSpace(apiKey) != "" {
			clientConfig.APIKey = apiKey
		}
		if strings.TrimSpace(baseURL) != "" {
			clientConfig.BaseURL = baseURL
		}
		client := NewOpenAIClient(clientConfig)
		if !client.Available() {
			return nil, fmt.Errorf("openai: %w", ErrProviderUnavailable)
		}
		return NewProvider(client, f.limiter(name)), nil
	case "openrouter":
		clientConfig := f.config.OpenRouter
		if strings.TrimSpace(apiKey) != "" {
			clientConfig.APIKey = apiKey
		}
		if strings.TrimSpace(baseURL) != "" {
			clientConfig.BaseURL = baseURL
		}
		client := NewOpenRouterClient(clientConfig)
		if !client.Available() {
			return nil, fmt.Errorf("openrouter: %w", ErrProviderUnavailable)
		}
		return NewProvider(client, f.limiter(name)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func (f *Factory) limiter(name string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.config.RateRPS), f.config.RateBurst)
		f.limiters[name] = limiter
	}
	return limiter
}

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
