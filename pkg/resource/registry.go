package resource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kiln-io/kiln/pkg/errors"
)

// Factory creates a provider instance.
type Factory func() (Provider, error)

// Registry maps resource type keys to provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a provider factory for a resource type. Registering the
// same type twice panics; that is a programming error.
func (r *Registry) Register(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typeName]; exists {
		panic(fmt.Sprintf("resource: provider %q registered twice", typeName))
	}
	r.factories[typeName] = factory
}

// Provider returns a provider instance for the given resource type.
func (r *Registry) Provider(typeName string) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("unknown resource type %q", typeName))
	}
	return factory()
}

// Types returns the registered resource type keys, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

var defaultRegistry = NewRegistry()

// Register adds a provider factory to the default registry.
func Register(typeName string, factory Factory) {
	defaultRegistry.Register(typeName, factory)
}

// DefaultRegistry returns the process-wide registry that init-time
// registrations land in.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
