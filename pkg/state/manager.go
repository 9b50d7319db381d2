// Package state provides persistence for kiln stacks over pluggable blob
// backends.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kiln-io/kiln/pkg/state/backend"
	"github.com/kiln-io/kiln/pkg/state/types"
)

// Manager provides high-level state operations. All stack operations are
// tenant-scoped.
type Manager interface {
	// Stack operations
	GetStack(ctx context.Context, tenant, name string) (*types.StackRecord, error)
	SaveStack(ctx context.Context, record *types.StackRecord) error
	DeleteStack(ctx context.Context, tenant, name string) error
	ListStacks(ctx context.Context, tenant string) ([]types.StackRef, error)

	// Event log
	AppendEvent(ctx context.Context, tenant string, event *types.EventRecord) error
	ListEvents(ctx context.Context, tenant, stack string) ([]types.EventRecord, error)

	// Locking
	Lock(ctx context.Context, scope LockScope) (backend.Lock, error)

	// Backend info
	Backend() backend.Backend
}

// LockScope defines what to lock.
type LockScope struct {
	Tenant    string
	Stack     string
	Operation string
	Who       string
}

type manager struct {
	backend backend.Backend
}

// NewManager creates a state manager over the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a state manager from backend configuration.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

// Stack operations

func (m *manager) GetStack(ctx context.Context, tenant, name string) (*types.StackRecord, error) {
	return readJSON[types.StackRecord](ctx, m.backend, stackPath(tenant, name))
}

func (m *manager) SaveStack(ctx context.Context, record *types.StackRecord) error {
	record.UpdatedAt = time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
	return writeJSON(ctx, m.backend, stackPath(record.Tenant, record.Name), record)
}

func (m *manager) DeleteStack(ctx context.Context, tenant, name string) error {
	// Remove everything under the stack, events included
	paths, err := m.backend.List(ctx, path.Join("stacks", tenant, name))
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err := m.backend.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}

	return nil
}

func (m *manager) ListStacks(ctx context.Context, tenant string) ([]types.StackRef, error) {
	paths, err := m.backend.List(ctx, path.Join("stacks", tenant)+"/")
	if err != nil {
		return nil, err
	}

	// Path format: stacks/<tenant>/<name>/stack.state.json
	names := make(map[string]bool)
	for _, p := range paths {
		parts := splitPath(p)
		if len(parts) >= 4 && parts[3] == "stack.state.json" {
			names[parts[2]] = true
		}
	}

	refs := make([]types.StackRef, 0, len(names))
	for name := range names {
		record, err := m.GetStack(ctx, tenant, name)
		if err != nil {
			continue // Skip stacks that can't be read
		}
		refs = append(refs, types.StackRef{
			Tenant:    record.Tenant,
			Name:      record.Name,
			ID:        record.ID,
			Action:    record.Action,
			Status:    record.Status,
			CreatedAt: record.CreatedAt,
			UpdatedAt: record.UpdatedAt,
		})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Event log

func (m *manager) AppendEvent(ctx context.Context, tenant string, event *types.EventRecord) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Timestamp-prefixed file names keep the log sorted on list
	name := fmt.Sprintf("%s-%s.json", event.Timestamp.UTC().Format("20060102T150405.000000000"), event.ID)
	return writeJSON(ctx, m.backend, path.Join("stacks", tenant, event.Stack, "events", name), event)
}

func (m *manager) ListEvents(ctx context.Context, tenant, stack string) ([]types.EventRecord, error) {
	prefix := path.Join("stacks", tenant, stack, "events") + "/"
	paths, err := m.backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	events := make([]types.EventRecord, 0, len(paths))
	for _, p := range paths {
		event, err := readJSON[types.EventRecord](ctx, m.backend, p)
		if err != nil {
			continue
		}
		events = append(events, *event)
	}

	return events, nil
}

// Locking

func (m *manager) Lock(ctx context.Context, scope LockScope) (backend.Lock, error) {
	lockPath := path.Join("stacks", scope.Tenant)
	if scope.Stack != "" {
		lockPath = path.Join(lockPath, scope.Stack)
	}

	info := backend.LockInfo{
		Who:       scope.Who,
		Operation: scope.Operation,
	}

	return m.backend.Lock(ctx, lockPath, info)
}

// Path helpers

func stackPath(tenant, name string) string {
	return path.Join("stacks", tenant, name, "stack.state.json")
}

func splitPath(p string) []string {
	var parts []string
	for p != "" && p != "." && p != "/" {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		p = path.Clean(dir)
	}
	return parts
}

// JSON helpers

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return b.Write(ctx, p, bytes.NewReader(content))
}
