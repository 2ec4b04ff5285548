package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// ProviderError is returned when a model provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages provider clients and resolves model references to clients.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]Client // provider name → client
	aliases   map[string]string // model alias → provider name
	fallback  string            // default provider name
	fallbacks []string          // ordered failover chain after the default
	log       *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered model provider")
}

// Alias maps a model name to a provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// AddFailover appends a provider to the failover chain.
func (r *Registry) AddFailover(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, provider)
}

// Failovers returns the clients of the failover chain, in order.
func (r *Registry) Failovers() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.fallbacks))
	for _, name := range r.fallbacks {
		if c, ok := r.clients[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no model provider for %q", model)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewClient builds a client for one provider entry.
func NewClient(p config.ProviderConfig) (Client, error) {
	switch p.Provider {
	case "openai", "":
		return NewOpenAIClient(p.APIKey, p.Model, p.Endpoint), nil
	case "claude":
		return NewClaudeAPIClient(p.APIKey, p.Model, p.Endpoint), nil
	case "ollama":
		return NewOllamaClient(p.Endpoint, p.Model)
	default:
		return nil, fmt.Errorf("unknown model provider %q", p.Provider)
	}
}

// NewRegistryFromConfig registers the primary provider as the default and
// every configured fallback as a failover, keyed by provider name. A fallback
// using the same provider as an earlier entry is keyed "<provider>#<n>".
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)

	primary, err := NewClient(cfg.ProviderConfig)
	if err != nil {
		return nil, err
	}
	primaryName := primary.Name()
	reg.Register(primaryName, primary)
	reg.SetFallback(primaryName)
	if cfg.Model != "" {
		reg.Alias(cfg.Model, primaryName)
	}

	for i, fb := range cfg.Fallbacks {
		client, err := NewClient(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %d: %w", i, err)
		}
		name := client.Name()
		if _, taken := reg.clients[name]; taken {
			name = fmt.Sprintf("%s#%d", name, i+1)
		}
		reg.Register(name, client)
		reg.AddFailover(name)
		if fb.Model != "" {
			reg.Alias(fb.Model, name)
		}
	}
	return reg, nil
}
