package payment

import (
	"errors"
	"sync"

	"github.com/tiffinbox/checkout/internal/module/payment/provider"
)

// ProviderRegistry manages the configured payment gateways.
type ProviderRegistry struct {
	mu          sync.RWMutex
	gateways    map[string]provider.Gateway
	scriptable  map[string]provider.ScriptServer
	defaultName string
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(defaultName string) *ProviderRegistry {
	return &ProviderRegistry{
		gateways:    make(map[string]provider.Gateway),
		scriptable:  make(map[string]provider.ScriptServer),
		defaultName: defaultName,
	}
}

// Register registers a gateway.
func (r *ProviderRegistry) Register(g provider.Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g

	// Also register as a script server if applicable
	if s, ok := g.(provider.ScriptServer); ok {
		r.scriptable[g.Name()] = s
	}
}

// Get returns a gateway by name.
func (r *ProviderRegistry) Get(name string) (provider.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[name]
	if !ok {
		return nil, errors.New("gateway not found: " + name)
	}
	return g, nil
}

// Default returns the configured default gateway.
func (r *ProviderRegistry) Default() (provider.Gateway, error) {
	return r.Get(r.defaultName)
}

// ScriptServer returns the script server for a gateway, if it has one.
func (r *ProviderRegistry) ScriptServer(name string) (provider.ScriptServer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scriptable[name]
	if !ok {
		return nil, errors.New("gateway has no checkout script: " + name)
	}
	return s, nil
}
