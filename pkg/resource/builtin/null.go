// Package builtin registers the resource providers that ship with kiln
// itself. They hold no external infrastructure and exist for wiring,
// testing and template plumbing.
package builtin

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kiln-io/kiln/pkg/resource"
)

// TypeNull is a resource that does nothing. Useful as a synchronization
// point in dependency graphs.
const TypeNull = "kiln::util::null"

var sharedNull = &nullProvider{values: map[string]map[string]interface{}{}}

func init() {
	resource.Register(TypeNull, func() (resource.Provider, error) {
		return sharedNull, nil
	})
}

type nullProvider struct {
	mu     sync.Mutex
	values map[string]map[string]interface{}
}

func (p *nullProvider) TypeName() string { return TypeNull }

func (p *nullProvider) Create(ctx context.Context, name string, properties map[string]interface{}) (string, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.values[id] = properties
	p.mu.Unlock()
	return id, nil
}

func (p *nullProvider) Update(ctx context.Context, physicalID string, properties map[string]interface{}) error {
	p.mu.Lock()
	p.values[physicalID] = properties
	p.mu.Unlock()
	return nil
}

func (p *nullProvider) Delete(ctx context.Context, physicalID string) error {
	p.mu.Lock()
	delete(p.values, physicalID)
	p.mu.Unlock()
	return nil
}

func (p *nullProvider) Suspend(ctx context.Context, physicalID string) error { return nil }

func (p *nullProvider) Resume(ctx context.Context, physicalID string) error { return nil }

// Attribute exposes the resource's own properties as attributes.
func (p *nullProvider) Attribute(ctx context.Context, physicalID, name string) (interface{}, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	props, ok := p.values[physicalID]
	if !ok {
		return nil, false, nil
	}
	value, ok := props[name]
	return value, ok, nil
}

func (p *nullProvider) UpdateAllowedProperties() []string { return []string{"*"} }
