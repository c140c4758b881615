// Package plugin lets a deployment extend the service without patching
// core packages. A plugin registers lifecycle-event handlers, contributes
// tools to the tool-augmented answer path, or both. Plugins are compiled
// in and registered by the composition root; there is no dynamic loading.
package plugin

import (
	"context"

	"github.com/soyeahso/docent/internal/agent"
	"github.com/soyeahso/docent/internal/hooks"
	"github.com/soyeahso/docent/internal/logging"
)

// Plugin is one compiled-in extension.
type Plugin interface {
	// ID returns a unique identifier, e.g. "transcript-audit".
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init wires the plugin up. Hook handlers and tools are registered
	// here; resources opened here are released in Close.
	Init(ctx context.Context, api API) error

	// Close releases the plugin's resources.
	Close() error
}

// API is what a plugin may touch during Init: the event bus, the tool
// registry, and a logger scoped to the plugin's ID.
type API struct {
	Hooks *hooks.Manager
	Tools *agent.Registry
	Log   *logging.Logger
}
