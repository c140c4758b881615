package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/docent/internal/agent"
	"github.com/soyeahso/docent/internal/hooks"
	"github.com/soyeahso/docent/internal/logging"
)

// Registry owns plugin lifecycle. Registration order is init order and
// close runs in reverse, so a plugin may depend on one registered
// before it.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
	inited  []string // subset of order whose Init succeeded
	hooks   *hooks.Manager
	tools   *agent.Registry
	log     *logging.Logger
}

// NewRegistry creates a plugin registry. The tool registry may be nil
// when the tool path is disabled; plugins then get a nil API.Tools and
// must skip tool registration.
func NewRegistry(hm *hooks.Manager, tools *agent.Registry, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		hooks:   hm,
		tools:   tools,
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin without initializing it. IDs must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("plugin already registered: %s", id)
	}
	r.plugins[id] = p
	r.order = append(r.order, id)

	r.log.Info().
		Str("id", id).
		Str("name", p.Name()).
		Str("version", p.Version()).
		Msg("plugin registered")
	return nil
}

// InitAll initializes plugins in registration order, stopping at the
// first failure. Only plugins whose Init succeeded are remembered, so a
// later CloseAll skips the failed one and everything after it.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		p := r.plugins[id]
		api := API{
			Hooks: r.hooks,
			Tools: r.tools,
			Log:   r.log.Sub(id),
		}

		r.log.Info().Str("id", id).Msg("initializing plugin")
		if err := p.Init(ctx, api); err != nil {
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.inited = append(r.inited, id)
	}
	return nil
}

// CloseAll shuts down initialized plugins in reverse init order. Close
// errors are logged, never raised: one stuck plugin must not block the
// rest of shutdown. Safe to call again; plugins close once.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	closing := r.inited
	r.inited = nil
	r.mu.Unlock()

	for i := len(closing) - 1; i >= 0; i-- {
		id := closing[i]
		r.log.Info().Str("id", id).Msg("closing plugin")
		if err := r.Get(id).Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
}

// Get looks a plugin up by ID; unknown IDs yield nil.
func (r *Registry) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[id]
}

// List returns registered plugin IDs in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count reports how many plugins are registered, initialized or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Info returns summary data for all registered plugins, in
// registration order.
func (r *Registry) Info() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(r.order))
	for _, id := range r.order {
		p := r.plugins[id]
		infos = append(infos, PluginInfo{
			ID:      p.ID(),
			Name:    p.Name(),
			Version: p.Version(),
		})
	}
	return infos
}

// PluginInfo is a serializable plugin summary.
type PluginInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}
