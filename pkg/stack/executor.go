package stack

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/user"
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/functions"
	"github.com/kiln-io/kiln/pkg/graph"
	"github.com/kiln-io/kiln/pkg/resource"
	"github.com/kiln-io/kiln/pkg/state"
	"github.com/kiln-io/kiln/pkg/state/types"
	"github.com/kiln-io/kiln/pkg/template"
)

// Create provisions every resource in the stack's template in dependency
// order. Dependent resources start only after everything they depend on
// has completed. A failure cancels the remaining work and, unless rollback
// is disabled, tears down whatever was created.
func (s *Stack) Create(ctx context.Context) error {
	if st := s.State(); st.Status != "" {
		return errors.ValidationError(fmt.Sprintf("stack %s is in state %s and cannot be created", s.id.Name, st), nil)
	}

	unlock, err := s.acquireLock(ctx, "create")
	if err != nil {
		return err
	}
	defer unlock()

	g, err := s.dependencyGraph(s.tmpl)
	if err != nil {
		return err
	}

	s.setStackState(resource.ActionCreate, resource.StatusInProgress, "stack creation started")

	err = s.run(ctx, resource.ActionCreate, g, false, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		return s.createResource(ctx, res, resource.ActionCreate)
	})
	if err == nil {
		err = s.resolveOutputs()
	}
	if err != nil {
		s.setStackState(resource.ActionCreate, resource.StatusFailed, err.Error())
		if s.disableRollback {
			return err
		}
		if rbErr := s.rollbackCreate(context.WithoutCancel(ctx)); rbErr != nil {
			return rbErr
		}
		return err
	}

	s.setStackState(resource.ActionCreate, resource.StatusComplete, "stack creation complete")
	return nil
}

// Update moves the stack to a new template and parameter set. Changed
// resources are updated in place when their provider allows it and
// replaced otherwise, added resources are created, and removed resources
// are deleted after the rest of the update lands. On failure the previous
// template is reapplied unless rollback is disabled.
func (s *Stack) Update(ctx context.Context, tmpl *template.Template, userParams map[string]interface{}) error {
	if tmpl == nil {
		return errors.ValidationError("an update requires a template", nil)
	}
	st := s.State()
	if st.Status == resource.StatusInProgress {
		return errors.ValidationError(fmt.Sprintf("stack %s is busy in state %s", s.id.Name, st), nil)
	}

	params, err := template.Bind(tmpl.ParameterSchemas(), userParams, template.PseudoParameters{
		StackID:   s.id.String(),
		StackName: s.id.Name,
		Region:    s.region,
	})
	if err != nil {
		return err
	}
	if _, err := s.dependencyGraph(tmpl); err != nil {
		return err
	}

	unlock, err := s.acquireLock(ctx, "update")
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	oldTmpl, oldParams := s.tmpl, s.params
	s.mu.RUnlock()

	s.setStackState(resource.ActionUpdate, resource.StatusInProgress, "stack update started")

	err = s.applyUpdate(ctx, tmpl, params, resource.ActionUpdate)
	if err == nil {
		err = s.resolveOutputs()
	}
	if err != nil {
		s.setStackState(resource.ActionUpdate, resource.StatusFailed, err.Error())
		if s.disableRollback {
			return err
		}

		rctx := context.WithoutCancel(ctx)
		s.setStackState(resource.ActionRollback, resource.StatusInProgress, "rolling back failed update")
		if rbErr := s.applyUpdate(rctx, oldTmpl, oldParams, resource.ActionRollback); rbErr != nil {
			s.setStackState(resource.ActionRollback, resource.StatusFailed, rbErr.Error())
			return errors.RollbackFailure(s.id.Name, rbErr)
		}
		if outErr := s.resolveOutputs(); outErr != nil {
			s.setStackState(resource.ActionRollback, resource.StatusFailed, outErr.Error())
			return errors.RollbackFailure(s.id.Name, outErr)
		}
		s.setStackState(resource.ActionRollback, resource.StatusComplete, "stack rollback complete")
		return err
	}

	s.setStackState(resource.ActionUpdate, resource.StatusComplete, "stack update complete")
	return nil
}

// Delete tears down the stack's resources, dependents before their
// dependencies. Resources with a retain or snapshot deletion policy leave
// their physical resource in place.
func (s *Stack) Delete(ctx context.Context) error {
	if st := s.State(); st.Status == resource.StatusInProgress {
		return errors.ValidationError(fmt.Sprintf("stack %s is busy in state %s", s.id.Name, st), nil)
	}

	unlock, err := s.acquireLock(ctx, "delete")
	if err != nil {
		return err
	}
	defer unlock()

	g, err := s.dependencyGraph(s.Template())
	if err != nil {
		return err
	}

	s.setStackState(resource.ActionDelete, resource.StatusInProgress, "stack deletion started")

	err = s.run(ctx, resource.ActionDelete, g, true, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		return s.deleteResource(ctx, res, resource.ActionDelete)
	})
	if err != nil {
		s.setStackState(resource.ActionDelete, resource.StatusFailed, err.Error())
		return err
	}

	s.mu.Lock()
	s.outputs = nil
	s.mu.Unlock()

	s.setStackState(resource.ActionDelete, resource.StatusComplete, "stack deletion complete")
	return nil
}

// Suspend pauses every resource, dependents before their dependencies.
func (s *Stack) Suspend(ctx context.Context) error {
	if st := s.State(); st.Status != resource.StatusComplete {
		return errors.ValidationError(fmt.Sprintf("stack %s is in state %s and cannot be suspended", s.id.Name, st), nil)
	}

	unlock, err := s.acquireLock(ctx, "suspend")
	if err != nil {
		return err
	}
	defer unlock()

	g, err := s.dependencyGraph(s.Template())
	if err != nil {
		return err
	}

	s.setStackState(resource.ActionSuspend, resource.StatusInProgress, "stack suspend started")

	err = s.run(ctx, resource.ActionSuspend, g, true, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		return s.pauseResource(ctx, res, resource.ActionSuspend)
	})
	if err != nil {
		s.setStackState(resource.ActionSuspend, resource.StatusFailed, err.Error())
		return err
	}

	s.setStackState(resource.ActionSuspend, resource.StatusComplete, "stack suspend complete")
	return nil
}

// Resume reverses Suspend, dependencies before their dependents.
func (s *Stack) Resume(ctx context.Context) error {
	if st := s.State(); st.Action != resource.ActionSuspend || st.Status != resource.StatusComplete {
		return errors.ValidationError(fmt.Sprintf("stack %s is in state %s and cannot be resumed", s.id.Name, st), nil)
	}

	unlock, err := s.acquireLock(ctx, "resume")
	if err != nil {
		return err
	}
	defer unlock()

	g, err := s.dependencyGraph(s.Template())
	if err != nil {
		return err
	}

	s.setStackState(resource.ActionResume, resource.StatusInProgress, "stack resume started")

	err = s.run(ctx, resource.ActionResume, g, false, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		return s.pauseResource(ctx, res, resource.ActionResume)
	})
	if err != nil {
		s.setStackState(resource.ActionResume, resource.StatusFailed, err.Error())
		return err
	}

	s.setStackState(resource.ActionResume, resource.StatusComplete, "stack resume complete")
	return nil
}

// Adopt brings pre-existing physical resources under the stack's control.
// Resources named in physicalIDs are adopted in place when their provider
// supports it; everything else is created as in Create.
func (s *Stack) Adopt(ctx context.Context, physicalIDs map[string]string) error {
	if st := s.State(); st.Status != "" {
		return errors.ValidationError(fmt.Sprintf("stack %s is in state %s and cannot adopt resources", s.id.Name, st), nil)
	}
	for name := range physicalIDs {
		if !s.HasResource(name) {
			return errors.InvalidTemplateReference("resource", name)
		}
	}

	unlock, err := s.acquireLock(ctx, "adopt")
	if err != nil {
		return err
	}
	defer unlock()

	g, err := s.dependencyGraph(s.tmpl)
	if err != nil {
		return err
	}

	s.setStackState(resource.ActionAdopt, resource.StatusInProgress, "stack adoption started")

	err = s.run(ctx, resource.ActionAdopt, g, false, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		if physicalID, ok := physicalIDs[name]; ok {
			return s.adoptResource(ctx, res, physicalID)
		}
		return s.createResource(ctx, res, resource.ActionAdopt)
	})
	if err == nil {
		err = s.resolveOutputs()
	}
	if err != nil {
		s.setStackState(resource.ActionAdopt, resource.StatusFailed, err.Error())
		return err
	}

	s.setStackState(resource.ActionAdopt, resource.StatusComplete, "stack adoption complete")
	return nil
}

// rollbackCreate deletes whatever a failed creation managed to provision.
func (s *Stack) rollbackCreate(ctx context.Context) error {
	s.setStackState(resource.ActionRollback, resource.StatusInProgress, "rolling back failed creation")

	g, err := s.dependencyGraph(s.tmpl)
	if err != nil {
		s.setStackState(resource.ActionRollback, resource.StatusFailed, err.Error())
		return errors.RollbackFailure(s.id.Name, err)
	}

	err = s.run(ctx, resource.ActionRollback, g, true, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		return s.deleteResource(ctx, res, resource.ActionRollback)
	})
	if err != nil {
		s.setStackState(resource.ActionRollback, resource.StatusFailed, err.Error())
		return errors.RollbackFailure(s.id.Name, err)
	}

	s.setStackState(resource.ActionRollback, resource.StatusComplete, "stack rollback complete")
	return nil
}

// applyUpdate walks a target template over the stack's current resources.
// It is used both for the forward update and, with the previous template,
// for rollback.
func (s *Stack) applyUpdate(ctx context.Context, tmpl *template.Template, params *template.Parameters, action resource.Action) error {
	g, err := s.dependencyGraph(tmpl)
	if err != nil {
		return err
	}

	defs := resource.DefinitionsFrom(tmpl)

	s.mu.Lock()
	s.tmpl, s.params = tmpl, params
	for name, def := range defs {
		if _, ok := s.resources[name]; !ok {
			s.resources[name] = resource.NewResource(def)
		}
	}
	// Resources absent from the incoming template are deleted after the
	// surviving ones settle, in dependents-first order among themselves.
	var removed []*resource.Resource
	for name, res := range s.resources {
		if _, ok := defs[name]; !ok {
			removed = append(removed, res)
		}
	}
	s.mu.Unlock()

	// One deadline spans the whole action: the walk over surviving
	// resources and the removal phase after it share the same budget.
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.run(ctx, action, g, false, func(ctx context.Context, name string) error {
		res, _ := s.Resource(name)
		return s.updateResource(ctx, res, defs[name], action)
	})
	if err != nil {
		return err
	}

	order, err := removalOrder(removed)
	if err != nil {
		return err
	}
	for _, res := range order {
		if err := s.deleteResource(ctx, res, action); err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) {
				return errors.Timeout(string(action))
			}
			return err
		}
		s.mu.Lock()
		delete(s.resources, res.Name)
		s.mu.Unlock()
	}
	return nil
}

// removalOrder sorts removed resources so dependents are deleted before
// the resources they depend on. Dependencies on surviving resources are
// irrelevant here and dropped.
func removalOrder(removed []*resource.Resource) ([]*resource.Resource, error) {
	byName := make(map[string]*resource.Resource, len(removed))
	for _, res := range removed {
		byName[res.Name] = res
	}

	sources := make([]graph.Source, 0, len(removed))
	for _, res := range removed {
		def := res.Definition()
		var deps []string
		for _, dep := range def.DependsOn {
			if _, ok := byName[dep]; ok {
				deps = append(deps, dep)
			}
		}
		sources = append(sources, graph.Source{
			Name:      res.Name,
			DependsOn: deps,
			Snippets:  []interface{}{def.Properties, def.Metadata},
		})
	}

	g, err := graph.Build(sources)
	if err != nil {
		return nil, err
	}
	nodes, err := g.ReverseTopologicalSort()
	if err != nil {
		return nil, err
	}

	order := make([]*resource.Resource, 0, len(nodes))
	for _, node := range nodes {
		order = append(order, byName[node.Name])
	}
	return order, nil
}

// createResource provisions a single resource and records its transitions.
func (s *Stack) createResource(ctx context.Context, res *resource.Resource, action resource.Action) error {
	s.transition(res, action, resource.StatusInProgress, "resource creation started")

	physicalID, props, err := s.provision(ctx, res)
	if err != nil {
		s.transition(res, action, resource.StatusFailed, err.Error())
		return errors.ResourceFailure(res.Name, "create", err)
	}

	res.SetPhysicalID(physicalID)
	res.ResolvedProperties = props
	s.transition(res, action, resource.StatusComplete, "resource creation complete")
	return nil
}

func (s *Stack) provision(ctx context.Context, res *resource.Resource) (string, map[string]interface{}, error) {
	provider, err := s.registry.Provider(res.Type)
	if err != nil {
		return "", nil, err
	}
	props, err := s.resolveProperties(res.Name, res.Definition().Properties)
	if err != nil {
		return "", nil, err
	}
	physicalID, err := provider.Create(ctx, res.Name, props)
	if err != nil {
		return "", nil, err
	}
	return physicalID, props, nil
}

// updateResource reconciles one existing resource against its incoming
// definition. An unchanged resource is left untouched. A changed property
// outside the provider's update-allowed set, or a type change, forces a
// replacement: the new physical resource is created first, then the old
// one is discarded.
func (s *Stack) updateResource(ctx context.Context, res *resource.Resource, def resource.Definition, action resource.Action) error {
	if res.PhysicalID() == "" {
		res.SetDefinition(def)
		return s.createResource(ctx, res, action)
	}

	props, err := s.resolveProperties(res.Name, def.Properties)
	if err != nil {
		s.transition(res, action, resource.StatusFailed, err.Error())
		return errors.ResourceFailure(res.Name, "update", err)
	}

	typeChanged := res.Type != def.Type
	changed := changedKeys(res.ResolvedProperties, props)
	if !typeChanged && len(changed) == 0 {
		res.SetDefinition(def)
		return nil
	}

	provider, err := s.registry.Provider(def.Type)
	if err != nil {
		s.transition(res, action, resource.StatusFailed, err.Error())
		return errors.ResourceFailure(res.Name, "update", err)
	}

	if typeChanged || !updatableInPlace(provider, changed) {
		return s.replaceResource(ctx, res, def, action, provider, props)
	}

	s.transition(res, action, resource.StatusInProgress, "resource update started")
	if err := provider.Update(ctx, res.PhysicalID(), props); err != nil {
		s.transition(res, action, resource.StatusFailed, err.Error())
		return errors.ResourceFailure(res.Name, "update", err)
	}
	res.ResolvedProperties = props
	res.SetDefinition(def)
	s.transition(res, action, resource.StatusComplete, "resource update complete")
	return nil
}

func (s *Stack) replaceResource(ctx context.Context, res *resource.Resource, def resource.Definition, action resource.Action, provider resource.Provider, props map[string]interface{}) error {
	oldID := res.PhysicalID()
	oldType := res.Type
	oldPolicy := res.Definition().DeletionPolicy

	s.transition(res, action, resource.StatusInProgress, "resource replacement started")

	physicalID, err := provider.Create(ctx, res.Name, props)
	if err != nil {
		s.transition(res, action, resource.StatusFailed, err.Error())
		return errors.ResourceFailure(res.Name, "replace", err)
	}

	res.SetPhysicalID(physicalID)
	res.ResolvedProperties = props
	res.SetDefinition(def)
	s.transition(res, action, resource.StatusComplete, "resource replacement complete")

	// The displaced physical resource goes away under its old deletion
	// policy. Its removal cannot fail the action; the replacement already
	// landed.
	if oldID != "" && oldPolicy == resource.DeletionPolicyDelete {
		oldProvider, err := s.registry.Provider(oldType)
		if err == nil {
			err = oldProvider.Delete(ctx, oldID)
		}
		if err != nil {
			log.Warn().
				Str("stack", s.id.Name).
				Str("resource", res.Name).
				Str("physical_id", oldID).
				Err(err).
				Msg("failed to remove replaced resource")
		}
	}
	return nil
}

func (s *Stack) deleteResource(ctx context.Context, res *resource.Resource, action resource.Action) error {
	if st := res.State(); st.Action == resource.ActionDelete && st.Status == resource.StatusComplete {
		return nil
	}

	s.transition(res, action, resource.StatusInProgress, "resource deletion started")

	physicalID := res.PhysicalID()
	if physicalID != "" && res.Definition().DeletionPolicy == resource.DeletionPolicyDelete {
		provider, err := s.registry.Provider(res.Type)
		if err == nil {
			err = provider.Delete(ctx, physicalID)
		}
		if err != nil {
			s.transition(res, action, resource.StatusFailed, err.Error())
			return errors.ResourceFailure(res.Name, "delete", err)
		}
	}

	res.SetPhysicalID("")
	s.transition(res, action, resource.StatusComplete, "resource deletion complete")
	return nil
}

// pauseResource drives a single suspend or resume.
func (s *Stack) pauseResource(ctx context.Context, res *resource.Resource, action resource.Action) error {
	op := "suspend"
	if action == resource.ActionResume {
		op = "resume"
	}

	s.transition(res, action, resource.StatusInProgress, "resource "+op+" started")

	if physicalID := res.PhysicalID(); physicalID != "" {
		provider, err := s.registry.Provider(res.Type)
		if err == nil {
			if action == resource.ActionSuspend {
				err = provider.Suspend(ctx, physicalID)
			} else {
				err = provider.Resume(ctx, physicalID)
			}
		}
		if err != nil {
			s.transition(res, action, resource.StatusFailed, err.Error())
			return errors.ResourceFailure(res.Name, op, err)
		}
	}

	s.transition(res, action, resource.StatusComplete, "resource "+op+" complete")
	return nil
}

func (s *Stack) adoptResource(ctx context.Context, res *resource.Resource, physicalID string) error {
	s.transition(res, resource.ActionAdopt, resource.StatusInProgress, "resource adoption started")

	provider, err := s.registry.Provider(res.Type)
	if err == nil {
		adoptable, ok := provider.(resource.Adoptable)
		if !ok {
			err = errors.New(errors.ErrCodeValidation, fmt.Sprintf("resource type %q does not support adoption", res.Type))
		} else {
			var props map[string]interface{}
			props, err = s.resolveProperties(res.Name, res.Definition().Properties)
			if err == nil {
				err = adoptable.Adopt(ctx, physicalID, props)
				if err == nil {
					res.SetPhysicalID(physicalID)
					res.ResolvedProperties = props
				}
			}
		}
	}
	if err != nil {
		s.transition(res, resource.ActionAdopt, resource.StatusFailed, err.Error())
		return errors.ResourceFailure(res.Name, "adopt", err)
	}

	s.transition(res, resource.ActionAdopt, resource.StatusComplete, "resource adoption complete")
	return nil
}

// resolveProperties runs a resource's raw property tree through the
// function pipeline. Anything still unresolved afterwards means a
// dependency the graph should have ordered ahead of us is not ready, which
// is a bug worth failing loudly on.
func (s *Stack) resolveProperties(name string, raw map[string]interface{}) (map[string]interface{}, error) {
	if raw == nil {
		return map[string]interface{}{}, nil
	}

	resolved, err := functions.ResolveAll(raw, s.environment(s.Template()))
	if err != nil {
		return nil, err
	}
	if functions.HasUnresolved(resolved) {
		return nil, errors.ValidationError(fmt.Sprintf("resource %s still has unresolved functions in its properties", name), nil)
	}
	props, ok := resolved.(map[string]interface{})
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("resource %s properties did not resolve to a mapping", name), nil)
	}
	return props, nil
}

// resolveOutputs evaluates the template's outputs against live resources.
func (s *Stack) resolveOutputs() error {
	tmpl := s.Template()
	env := s.environment(tmpl)

	outputs := make(map[string]interface{})
	for name, output := range tmpl.Outputs() {
		value, err := functions.ResolveAll(output.Value, env)
		if err != nil {
			return errors.Wrap(errors.ErrCodeValidation, fmt.Sprintf("failed to resolve output %s", name), err)
		}
		outputs[name] = value
	}

	s.mu.Lock()
	s.outputs = outputs
	s.mu.Unlock()
	return nil
}

// run executes one task per graph node concurrently under the stack's
// timeout. A node's task starts only after every gating neighbour has
// finished: dependencies when walking forward, dependents when walking in
// reverse. The first failure cancels everything still pending.
func (s *Stack) run(ctx context.Context, action resource.Action, g *graph.Graph, reverse bool, task func(context.Context, string) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.setExecContext(ctx)
	defer s.setExecContext(context.Background())

	done := make(map[string]chan struct{}, len(g.Nodes))
	for name := range g.Nodes {
		done[name] = make(chan struct{})
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for name, node := range g.Nodes {
		gates := node.DependsOn
		if reverse {
			gates = node.DependedOnBy
		}

		wg.Add(1)
		go func(name string, gates []string) {
			defer wg.Done()
			for _, gate := range gates {
				select {
				case <-done[gate]:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			if err := task(ctx, name); err != nil {
				fail(err)
				return
			}
			close(done[name])
		}(name, gates)
	}
	wg.Wait()

	mu.Lock()
	err := firstErr
	mu.Unlock()

	if err == nil {
		err = context.Cause(ctx)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(string(action))
	}
	return err
}

func (s *Stack) setExecContext(ctx context.Context) {
	s.mu.Lock()
	s.execCtx = ctx
	s.mu.Unlock()
}

// setStackState records a stack-level transition, logs it and pushes the
// full record through the state manager.
func (s *Stack) setStackState(action resource.Action, status resource.Status, reason string) {
	s.mu.Lock()
	s.action, s.status, s.statusReason = action, status, reason
	s.mu.Unlock()

	s.emitEvent("", "", action, status, reason)
	s.persist(context.Background())

	log.Info().
		Str("stack", s.id.Name).
		Str("tenant", s.id.Tenant).
		Str("state", fmt.Sprintf("%s_%s", action, status)).
		Msg(reason)
}

// transition records a resource-level transition and its event.
func (s *Stack) transition(res *resource.Resource, action resource.Action, status resource.Status, reason string) {
	res.SetState(action, status, reason)
	s.emitEvent(res.Name, res.PhysicalID(), action, status, reason)

	log.Debug().
		Str("stack", s.id.Name).
		Str("resource", res.Name).
		Str("state", fmt.Sprintf("%s_%s", action, status)).
		Msg(reason)
}

func (s *Stack) emitEvent(resourceName, physicalID string, action resource.Action, status resource.Status, reason string) {
	if s.manager == nil {
		return
	}
	event := &types.EventRecord{
		Stack:      s.id.Name,
		Resource:   resourceName,
		PhysicalID: physicalID,
		Action:     string(action),
		Status:     string(status),
		Reason:     reason,
	}
	if err := s.manager.AppendEvent(context.Background(), s.id.Tenant, event); err != nil {
		log.Warn().Str("stack", s.id.Name).Err(err).Msg("failed to record stack event")
	}
}

func logSaveFailure(stack string, err error) {
	log.Warn().Str("stack", stack).Err(err).Msg("failed to persist stack state")
}

func (s *Stack) acquireLock(ctx context.Context, operation string) (func(), error) {
	if s.manager == nil {
		return func() {}, nil
	}
	lock, err := s.manager.Lock(ctx, state.LockScope{
		Tenant:    s.id.Tenant,
		Stack:     s.id.Name,
		Operation: operation,
		Who:       lockOwner(),
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Unlock(context.Background()); err != nil {
			log.Warn().Str("stack", s.id.Name).Err(err).Msg("failed to release stack lock")
		}
	}, nil
}

func lockOwner() string {
	owner := "unknown"
	if u, err := user.Current(); err == nil {
		owner = u.Username
	}
	if host, err := os.Hostname(); err == nil {
		owner += "@" + host
	}
	return owner
}

// changedKeys reports the property keys whose resolved values differ,
// including keys only present on one side.
func changedKeys(prev, next map[string]interface{}) []string {
	seen := make(map[string]bool)
	var changed []string
	for key, value := range next {
		seen[key] = true
		if !reflect.DeepEqual(prev[key], value) {
			changed = append(changed, key)
		}
	}
	for key := range prev {
		if !seen[key] {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func updatableInPlace(provider resource.Provider, changed []string) bool {
	allowed := make(map[string]bool)
	for _, key := range provider.UpdateAllowedProperties() {
		if key == "*" {
			return true
		}
		allowed[key] = true
	}
	for _, key := range changed {
		if !allowed[key] {
			return false
		}
	}
	return true
}
