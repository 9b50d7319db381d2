// Package stack hosts the stack model and the lifecycle executor that
// drives resources through their actions.
package stack

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/functions"
	"github.com/kiln-io/kiln/pkg/graph"
	"github.com/kiln-io/kiln/pkg/identity"
	"github.com/kiln-io/kiln/pkg/resource"
	"github.com/kiln-io/kiln/pkg/state"
	"github.com/kiln-io/kiln/pkg/state/types"
	"github.com/kiln-io/kiln/pkg/template"
)

// DefaultTimeout bounds a lifecycle action when no explicit timeout is
// given.
const DefaultTimeout = time.Hour

// Options configures a stack.
type Options struct {
	Tenant string
	Name   string

	// ID is assigned when empty.
	ID string

	Template   *template.Template
	Parameters map[string]interface{}

	// Registry supplies resource providers. Defaults to the process
	// registry.
	Registry *resource.Registry

	// Manager persists stack state and events when non-nil.
	Manager state.Manager

	// Region feeds the kiln.region pseudo parameter.
	Region string

	// Timeout bounds each lifecycle action.
	Timeout time.Duration

	// DisableRollback leaves a failed update in place for inspection.
	DisableRollback bool

	// Parent carries facade data when this stack is nested under a parent
	// resource.
	Parent *functions.ParentFacade
}

// Stack is a named collection of resources driven by a template.
type Stack struct {
	mu sync.RWMutex

	id     identity.Identifier
	region string

	tmpl   *template.Template
	params *template.Parameters

	resources map[string]*resource.Resource

	registry *resource.Registry
	manager  state.Manager
	parent   *functions.ParentFacade

	action       resource.Action
	status       resource.Status
	statusReason string

	timeout         time.Duration
	disableRollback bool

	outputs map[string]interface{}

	// execCtx is the context of the action in flight; attribute reads
	// during resolution run under it.
	execCtx context.Context
}

func (s *Stack) execContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execCtx
}

// New creates a stack from a template, binding user parameters against the
// template's schemas. The stack performs no provisioning until a lifecycle
// method is called.
func New(opts Options) (*Stack, error) {
	if opts.Template == nil {
		return nil, errors.ValidationError("a stack requires a template", nil)
	}
	if opts.Name == "" {
		return nil, errors.ValidationError("a stack requires a name", nil)
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	ident := identity.New(opts.Tenant, opts.Name, id)

	params, err := template.Bind(opts.Template.ParameterSchemas(), opts.Parameters, template.PseudoParameters{
		StackID:   ident.String(),
		StackName: opts.Name,
		Region:    opts.Region,
	})
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = resource.DefaultRegistry()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := &Stack{
		id:              ident,
		region:          opts.Region,
		tmpl:            opts.Template,
		params:          params,
		registry:        registry,
		manager:         opts.Manager,
		parent:          opts.Parent,
		timeout:         timeout,
		disableRollback: opts.DisableRollback,
		resources:       make(map[string]*resource.Resource),
		execCtx:         context.Background(),
	}

	for name, def := range resource.DefinitionsFrom(opts.Template) {
		s.resources[name] = resource.NewResource(def)
	}

	// Surface cycles and bad references before any action starts
	if _, err := s.dependencyGraph(s.tmpl); err != nil {
		return nil, err
	}

	return s, nil
}

// Identifier returns the stack's identifier.
func (s *Stack) Identifier() identity.Identifier {
	return s.id
}

// Name returns the stack name.
func (s *Stack) Name() string {
	return s.id.Name
}

// Template returns the stack's current template.
func (s *Stack) Template() *template.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tmpl
}

// Parameters returns the bound parameters.
func (s *Stack) Parameters() *template.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// State returns the stack-level (action, status) pair.
func (s *Stack) State() resource.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resource.State{Action: s.action, Status: s.status}
}

// StatusReason returns the explanation recorded with the last stack-level
// transition.
func (s *Stack) StatusReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusReason
}

// Resource returns the named runtime resource.
func (s *Stack) Resource(name string) (*resource.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[name]
	return r, ok
}

// ResourceNames returns the names of the stack's runtime resources,
// unsorted.
func (s *Stack) ResourceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.resources))
	for name := range s.resources {
		names = append(names, name)
	}
	return names
}

// Outputs returns the resolved output values from the last completed
// action.
func (s *Stack) Outputs() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// environment builds the function resolution environment for the given
// template, with the stack itself serving live resource data.
func (s *Stack) environment(t *template.Template) *functions.Environment {
	return &functions.Environment{
		Parameters: s.params,
		Template:   t,
		Resources:  s,
		Parent:     s.parent,
	}
}

// HasResource implements functions.ResourceResolver.
func (s *Stack) HasResource(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resources[name]
	return ok
}

// ReferenceID implements functions.ResourceResolver. The reference id is
// only available once the resource's latest action has completed.
func (s *Stack) ReferenceID(name string) (string, bool, error) {
	s.mu.RLock()
	res, ok := s.resources[name]
	s.mu.RUnlock()
	if !ok {
		return "", false, errors.InvalidTemplateReference("resource", name)
	}

	if res.State().Status != resource.StatusComplete {
		return "", false, nil
	}
	physicalID := res.PhysicalID()
	if physicalID == "" {
		return "", false, nil
	}

	provider, err := s.registry.Provider(res.Type)
	if err != nil {
		return "", false, err
	}
	if referencer, ok := provider.(resource.Referencer); ok {
		id, err := referencer.ReferenceID(s.execContext(), physicalID)
		if err != nil {
			return "", false, err
		}
		return id, true, nil
	}
	return physicalID, true, nil
}

// Attribute implements functions.ResourceResolver. Attributes resolve only
// while the target resource is in a live state; an unknown attribute name
// is an error.
func (s *Stack) Attribute(name, attr string) (interface{}, bool, error) {
	s.mu.RLock()
	res, ok := s.resources[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false, errors.InvalidTemplateAttribute(name, attr)
	}

	if !res.Live() {
		return nil, false, nil
	}
	physicalID := res.PhysicalID()
	if physicalID == "" {
		return nil, false, nil
	}

	provider, err := s.registry.Provider(res.Type)
	if err != nil {
		return nil, false, err
	}
	value, known, err := provider.Attribute(s.execContext(), physicalID, attr)
	if err != nil {
		return nil, false, err
	}
	if !known {
		return nil, false, errors.InvalidTemplateAttribute(name, attr)
	}
	return value, true, nil
}

// dependencyGraph builds the dependency graph for a template's resources.
func (s *Stack) dependencyGraph(t *template.Template) (*graph.Graph, error) {
	defs := resource.DefinitionsFrom(t)
	sources := make([]graph.Source, 0, len(defs))
	for _, def := range defs {
		sources = append(sources, graph.Source{
			Name:      def.Name,
			DependsOn: def.DependsOn,
			Snippets: []interface{}{
				def.Properties,
				def.Metadata,
				def.UpdatePolicy,
			},
		})
	}

	g, err := graph.Build(sources)
	if err != nil {
		return nil, err
	}
	// Surface cycles here, before any resource action can start. A cycle
	// that only reached run() would deadlock every task on its gates until
	// the action deadline burned down.
	if _, err := g.TopologicalSort(); err != nil {
		return nil, err
	}
	return g, nil
}

// record converts the stack's current state to its persisted form.
func (s *Stack) record() *types.StackRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := make(map[string]*types.ResourceRecord, len(s.resources))
	for name, res := range s.resources {
		st := res.State()
		resources[name] = &types.ResourceRecord{
			Name:           name,
			Type:           res.Type,
			Stack:          s.id.Name,
			PhysicalID:     res.PhysicalID(),
			Action:         string(st.Action),
			Status:         string(st.Status),
			StatusReason:   res.StatusReason(),
			Properties:     res.ResolvedProperties,
			Metadata:       res.Definition().Metadata,
			DeletionPolicy: res.Definition().DeletionPolicy,
			CreatedAt:      res.CreatedAt,
			UpdatedAt:      res.UpdatedAt,
		}
	}

	body, _ := s.tmpl.ToYAML()

	return &types.StackRecord{
		Tenant:          s.id.Tenant,
		Name:            s.id.Name,
		ID:              s.id.ID,
		Action:          string(s.action),
		Status:          string(s.status),
		StatusReason:    s.statusReason,
		Region:          s.region,
		Template:        types.TemplateRecord{Dialect: s.tmpl.Dialect(), Version: s.tmpl.Version(), Body: body},
		Parameters:      s.params.Declared(),
		TimeoutSeconds:  int(s.timeout / time.Second),
		DisableRollback: s.disableRollback,
		Outputs:         s.outputs,
		Resources:       resources,
	}
}

// Restore rebuilds a stack from its persisted record so lifecycle actions
// can continue in a fresh process.
func Restore(record *types.StackRecord, registry *resource.Registry, manager state.Manager) (*Stack, error) {
	tmpl, err := template.NewLoader().LoadFromBytes(record.Template.Body, record.Name)
	if err != nil {
		return nil, err
	}

	s, err := New(Options{
		Tenant:          record.Tenant,
		Name:            record.Name,
		ID:              record.ID,
		Template:        tmpl,
		Parameters:      record.Parameters,
		Registry:        registry,
		Manager:         manager,
		Region:          record.Region,
		Timeout:         time.Duration(record.TimeoutSeconds) * time.Second,
		DisableRollback: record.DisableRollback,
	})
	if err != nil {
		return nil, err
	}

	s.action = resource.Action(record.Action)
	s.status = resource.Status(record.Status)
	s.statusReason = record.StatusReason
	s.outputs = record.Outputs

	for name, rr := range record.Resources {
		res, ok := s.resources[name]
		if !ok {
			// A resource the template no longer declares can linger in an
			// interrupted update's record.
			res = resource.NewResource(resource.Definition{
				Name:           name,
				Type:           rr.Type,
				Metadata:       rr.Metadata,
				DeletionPolicy: rr.DeletionPolicy,
			})
			s.resources[name] = res
		}
		res.SetState(resource.Action(rr.Action), resource.Status(rr.Status), rr.StatusReason)
		res.SetPhysicalID(rr.PhysicalID)
		res.ResolvedProperties = rr.Properties
		res.CreatedAt = rr.CreatedAt
		res.UpdatedAt = rr.UpdatedAt
	}

	return s, nil
}

// persist writes the stack record through the state manager, when one is
// configured.
func (s *Stack) persist(ctx context.Context) {
	if s.manager == nil {
		return
	}
	if err := s.manager.SaveStack(ctx, s.record()); err != nil {
		logSaveFailure(s.id.Name, err)
	}
}
