package llm

import (
	"fmt"
	"sync"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/logging"
)

// Provider is one row of the provider table.
type Provider struct {
	Name   string
	Client Client
	// HasCredential reports whether the provider can be called at all.
	HasCredential func() bool
	SelectModel   ModelSelector
	// Models is the catalog probed by health checks.
	Models []string
}

func (p Provider) configured() bool {
	return p.Client != nil && (p.HasCredential == nil || p.HasCredential())
}

// Registry is the ordered provider table. Earlier entries are preferred.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	log       *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{log: log.Sub("llm.registry")}
}

// Register appends a provider, or replaces one with the same name in place.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.providers {
		if r.providers[i].Name == p.Name {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
	r.log.Debug().Str("provider", p.Name).Bool("configured", p.configured()).Msg("registered LLM provider")
}

// Configured returns the providers that have credentials, in preference order.
func (r *Registry) Configured() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.providers {
		if p.configured() {
			out = append(out, p)
		}
	}
	return out
}

// Resolve returns the provider registered under name.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name == name {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("no LLM provider %q", name)
}

// List returns all registered provider names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name
	}
	return names
}

// NewRegistryFromConfig builds the gemini, qwen and openai providers in the
// configured order. Providers without an API key are registered but skipped
// by Configured.
func NewRegistryFromConfig(cfg config.ProvidersConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	order := cfg.Order
	if len(order) == 0 {
		order = config.DefaultProviderOrder
	}
	for _, name := range order {
		p, ok := providerFromConfig(name, cfg)
		if !ok {
			reg.log.Warn().Str("provider", name).Msg("unknown provider in order, skipping")
			continue
		}
		reg.Register(p)
	}
	return reg
}

func providerFromConfig(name string, cfg config.ProvidersConfig) (Provider, bool) {
	hasKey := func(key string) func() bool {
		return func() bool { return key != "" }
	}

	switch name {
	case "gemini":
		e := cfg.Gemini
		return Provider{
			Name:          name,
			Client:        NewGeminiAPIClient(e.APIKey, "gemini-1.5-flash", e.BaseURL),
			HasCredential: hasKey(e.APIKey),
			SelectModel:   SelectGeminiModel,
			Models:        GeminiModels,
		}, true
	case "qwen":
		e := cfg.Qwen
		base := e.BaseURL
		if base == "" {
			base = DashScopeBaseURL
		}
		return Provider{
			Name:          name,
			Client:        NewOpenAICompatClient(name, e.APIKey, base, "qwen-turbo"),
			HasCredential: hasKey(e.APIKey),
			SelectModel:   SelectQwenModel,
			Models:        QwenModels,
		}, true
	case "openai":
		e := cfg.OpenAI
		return Provider{
			Name:          name,
			Client:        NewOpenAICompatClient(name, e.APIKey, e.BaseURL, "gpt-3.5-turbo"),
			HasCredential: hasKey(e.APIKey),
			SelectModel:   SelectOpenAIModel,
			Models:        OpenAIModels,
		}, true
	}
	return Provider{}, false
}
