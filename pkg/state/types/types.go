// Package types defines the data structures persisted as kiln state.
package types

import (
	"time"
)

// StackRecord is the persisted form of a stack.
type StackRecord struct {
	// Metadata
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Status of the latest lifecycle action
	Action       string `json:"action"`
	Status       string `json:"status"`
	StatusReason string `json:"status_reason,omitempty"`

	// Region fed into the kiln.region pseudo parameter
	Region string `json:"region,omitempty"`

	// Template the stack was last acted on with
	Template TemplateRecord `json:"template"`

	// Bound values of the declared parameters
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Execution settings
	TimeoutSeconds  int  `json:"timeout_seconds,omitempty"`
	DisableRollback bool `json:"disable_rollback,omitempty"`

	// Resolved output values from the last completed action
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Resource records keyed by name
	Resources map[string]*ResourceRecord `json:"resources,omitempty"`
}

// TemplateRecord carries a template body with its dialect so the right
// parser can be chosen on reload.
type TemplateRecord struct {
	Dialect string `json:"dialect"`
	Version string `json:"version"`
	Body    []byte `json:"body"`
}

// ResourceRecord is the persisted form of one resource.
type ResourceRecord struct {
	// Metadata
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Stack     string    `json:"stack"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Provider-assigned identifier; empty unless the latest action completed
	PhysicalID string `json:"physical_id,omitempty"`

	// Status of the latest lifecycle action
	Action       string `json:"action"`
	Status       string `json:"status"`
	StatusReason string `json:"status_reason,omitempty"`

	// Properties after function resolution, as handed to the provider.
	// Update diffing compares these across template versions.
	Properties map[string]interface{} `json:"properties,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	DeletionPolicy string `json:"deletion_policy,omitempty"`
}

// EventRecord is one entry in a stack's event log. Every state transition
// of the stack or one of its resources appends an event.
type EventRecord struct {
	ID        string    `json:"id"`
	Stack     string    `json:"stack"`
	Timestamp time.Time `json:"timestamp"`

	// Resource is empty for stack-level events
	Resource   string `json:"resource,omitempty"`
	PhysicalID string `json:"physical_id,omitempty"`

	Action string `json:"action"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// StackRef is a lightweight listing entry for a stack.
type StackRef struct {
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
