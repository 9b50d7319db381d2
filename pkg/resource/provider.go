package resource

import "context"

// Provider implements the lifecycle of one resource type. Implementations
// receive fully resolved property trees; no function nodes remain by the
// time a provider is called.
type Provider interface {
	// TypeName returns the resource type key this provider serves.
	TypeName() string

	// Create provisions a new physical resource and returns its physical
	// identifier.
	Create(ctx context.Context, name string, properties map[string]interface{}) (string, error)

	// Update applies changed properties to an existing physical resource.
	// The executor only calls Update when every changed property is listed
	// by UpdateAllowedProperties; anything else is a replacement.
	Update(ctx context.Context, physicalID string, properties map[string]interface{}) error

	// Delete tears down the physical resource. Deleting an already absent
	// resource must succeed.
	Delete(ctx context.Context, physicalID string) error

	// Suspend pauses the physical resource without destroying it.
	Suspend(ctx context.Context, physicalID string) error

	// Resume reverses Suspend.
	Resume(ctx context.Context, physicalID string) error

	// Attribute reads a named runtime attribute of the physical resource.
	// Unknown attribute names return ok=false.
	Attribute(ctx context.Context, physicalID, name string) (interface{}, bool, error)

	// UpdateAllowedProperties lists the top-level property keys that can
	// change in place. A change to any other key forces replacement. The
	// single entry "*" allows every property.
	UpdateAllowedProperties() []string
}

// Referencer is implemented by providers whose reference value differs
// from the physical identifier.
type Referencer interface {
	ReferenceID(ctx context.Context, physicalID string) (string, error)
}

// Adoptable is implemented by providers that can take ownership of a
// pre-existing physical resource instead of creating one.
type Adoptable interface {
	Adopt(ctx context.Context, physicalID string, properties map[string]interface{}) error
}
