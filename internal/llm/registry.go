package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/logging"
)

// ProviderError is a generation provider failure with enough shape for
// failover to decide whether another provider is worth trying.
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

// Registry holds the configured provider clients and answers the
// question "which client handles this model reference?".
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // keyed by provider name
	aliases  map[string]string // model name → provider name
	fallback string
	log      *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register installs client as the provider called name, replacing any
// earlier registration under that name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered generation provider")
}

// Alias routes requests naming model to the given provider, so a chat
// request for "gpt-4o-mini" lands on the "openai" client.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback names the provider that handles model references nothing
// else claims.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve maps a model reference to a client. The reference is tried
// first as a provider name, then through the alias table, and finally
// the fallback provider takes it.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// No provider registers under the empty string, so absent alias
	// and fallback entries cannot match by accident.
	for _, key := range []string{model, r.aliases[model], r.fallback} {
		if c, ok := r.clients[key]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no generation provider for model %q", model)
}

// List reports the registered provider names in sorted order.
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

// NewRegistryFromConfig builds a Registry with the configured primary
// provider plus any providers named in llm.fallbacks, so failover has
// somewhere to go.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	providers := append([]string{cfg.Provider}, cfg.Fallbacks...)
	for _, name := range providers {
		if _, exists := reg.clients[name]; exists {
			continue
		}

		switch name {
		case "openai":
			reg.Register("openai", NewOpenAIClient(cfg.APIKey, cfg.Model, openAIOptions{
				BaseURL:     cfg.BaseURL,
				MaxTokens:   cfg.MaxTokens,
				Temperature: cfg.Temperature,
			}))
		case "ollama":
			baseURL := ""
			if cfg.Provider == "ollama" {
				baseURL = cfg.BaseURL
			}
			reg.Register("ollama", NewOllamaClient(baseURL, cfg.Model))
		case "mock":
			reg.Register("mock", &MockClient{ProviderName: "mock"})
		}
	}

	reg.SetFallback(cfg.Provider)
	if cfg.Model != "" {
		reg.Alias(cfg.Model, cfg.Provider)
	}
	return reg
}
