// Package resource defines the resource lifecycle model and the provider
// plugin interface that backs each resource type.
package resource

import (
	"fmt"
	"sync"
	"time"
)

// Action is a lifecycle action applied to a resource or stack.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionSuspend  Action = "SUSPEND"
	ActionResume   Action = "RESUME"
	ActionRollback Action = "ROLLBACK"
	ActionAdopt    Action = "ADOPT"
)

// Status is the progress of the current action.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// State is an (action, status) pair.
type State struct {
	Action Action
	Status Status
}

func (s State) String() string {
	return fmt.Sprintf("%s_%s", s.Action, s.Status)
}

// liveStates are the states in which a resource's physical attributes may
// be read. Outside these, attribute access is deferred.
var liveStates = map[State]bool{
	{ActionCreate, StatusInProgress}: true,
	{ActionCreate, StatusComplete}:   true,
	{ActionResume, StatusInProgress}: true,
	{ActionResume, StatusComplete}:   true,
	{ActionUpdate, StatusInProgress}: true,
	{ActionUpdate, StatusComplete}:   true,
}

// Resource is the runtime record for one resource in a stack.
type Resource struct {
	mu sync.Mutex

	// Name within the owning template
	Name string

	// Type key used to look up the provider
	Type string

	definition Definition

	physicalID string

	state        State
	statusReason string

	// ResolvedProperties holds the property tree after function resolution,
	// as handed to the provider. Kept for update diffing.
	ResolvedProperties map[string]interface{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewResource creates a runtime resource for a definition. The state is
// zero until the first action begins.
func NewResource(def Definition) *Resource {
	return &Resource{
		Name:       def.Name,
		Type:       def.Type,
		definition: def,
	}
}

// Definition returns the template definition this resource was built from.
func (r *Resource) Definition() Definition {
	return r.definition
}

// SetDefinition replaces the definition, used when an update keeps the
// physical resource but adopts a new template body.
func (r *Resource) SetDefinition(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definition = def
	r.Name = def.Name
	r.Type = def.Type
}

// State returns the current (action, status) pair.
func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StatusReason returns the explanation recorded with the last transition.
func (r *Resource) StatusReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusReason
}

// SetState records a state transition with its reason.
func (r *Resource) SetState(action Action, status Status, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{Action: action, Status: status}
	r.statusReason = reason
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

// PhysicalID returns the provider-assigned identifier. It is only set
// while the latest action is COMPLETE.
func (r *Resource) PhysicalID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.physicalID
}

// SetPhysicalID records the provider-assigned identifier.
func (r *Resource) SetPhysicalID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.physicalID = id
}

// Live reports whether the resource's physical attributes may be read in
// its current state.
func (r *Resource) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return liveStates[r.state]
}
