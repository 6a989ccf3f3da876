// Package plugin defines the request-processing plugin model: a plugin
// declares capabilities by implementing Accessor, Responder or Logger,
// and chains execute the access phase in config order, the response
// phase in reverse over the plugins the access walk reached, and the
// log phase after the response bytes are written.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wudi/portway/internal/config"
)

// Plugin is the common surface of all plugins.
type Plugin interface {
	Name() string
}

// Accessor runs before the request is forwarded. Returning an error or
// setting a short-circuit response stops the access walk and skips the
// upstream.
type Accessor interface {
	Plugin
	Access(ctx *Context) error
}

// Responder runs over the buffered response before it is written,
// regardless of whether it came from the upstream or a short-circuit.
type Responder interface {
	Plugin
	Respond(ctx *Context, resp *Response) error
}

// Logger runs after the response bytes are written. Panics are swallowed.
type Logger interface {
	Plugin
	Log(ctx *Context, resp *Response)
}

// Factory builds a plugin instance from its config options. Option
// errors surface at config load, not per request.
type Factory func(options map[string]any) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a plugin factory. Called from init in the builtin package.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("plugin %s registered twice", name))
	}
	registry[name] = factory
}

// Build instantiates one plugin from config.
func Build(cfg config.PluginConfig) (Plugin, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown plugin %q", cfg.Name)
	}

	p, err := factory(cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", cfg.Name, err)
	}
	return p, nil
}

// Names returns all registered plugin names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateConfig builds and discards a plugin to surface option errors
// at config load time.
func ValidateConfig(name string, options map[string]any) error {
	_, err := Build(config.PluginConfig{Name: name, Config: options})
	return err
}

func init() {
	config.PluginValidator = ValidateConfig
}
