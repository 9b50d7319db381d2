package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiln-io/kiln/pkg/state/backend"
	"github.com/kiln-io/kiln/pkg/state/backend/local"
	"github.com/kiln-io/kiln/pkg/state/types"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return NewManager(b)
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(backend.Config{
		Type:   "local",
		Config: map[string]string{"path": t.TempDir()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Backend().Type() != "local" {
		t.Errorf("wrong backend type %q", m.Backend().Type())
	}

	if _, err := NewManagerFromConfig(backend.Config{Type: "bogus"}); err == nil {
		t.Error("expected error for unknown backend type")
	}
}

func TestManager_StackRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record := &types.StackRecord{
		Tenant: "acme",
		Name:   "web",
		ID:     "stack-1",
		Action: "CREATE",
		Status: "COMPLETE",
		Parameters: map[string]interface{}{
			"flavor": "m1.small",
		},
		Resources: map[string]*types.ResourceRecord{
			"server": {
				Name:       "server",
				Type:       "kiln::util::null",
				Stack:      "web",
				PhysicalID: "phys-1",
				Action:     "CREATE",
				Status:     "COMPLETE",
				Properties: map[string]interface{}{"flavor": "m1.small"},
			},
		},
	}

	if err := m.SaveStack(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := m.GetStack(ctx, "acme", "web")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != "stack-1" || got.Action != "CREATE" || got.Status != "COMPLETE" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Resources["server"].PhysicalID != "phys-1" {
		t.Errorf("resource record not persisted: %+v", got.Resources)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped on save")
	}
}

func TestManager_GetStackNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetStack(context.Background(), "acme", "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_ListStacks(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		if err := m.SaveStack(ctx, &types.StackRecord{Tenant: "acme", Name: name, ID: name + "-id"}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	// Another tenant's stack must not leak into the listing
	if err := m.SaveStack(ctx, &types.StackRecord{Tenant: "other", Name: "hidden", ID: "x"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	refs, err := m.ListStacks(ctx, "acme")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(refs) != 2 || refs[0].Name != "alpha" || refs[1].Name != "beta" {
		t.Errorf("unexpected listing: %+v", refs)
	}
}

func TestManager_DeleteStack(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.SaveStack(ctx, &types.StackRecord{Tenant: "acme", Name: "web", ID: "s1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := m.AppendEvent(ctx, "acme", &types.EventRecord{Stack: "web", Action: "CREATE", Status: "COMPLETE"}); err != nil {
		t.Fatalf("append event failed: %v", err)
	}

	if err := m.DeleteStack(ctx, "acme", "web"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := m.GetStack(ctx, "acme", "web"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("stack should be gone, got %v", err)
	}
	events, err := m.ListEvents(ctx, "acme", "web")
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events should be gone, got %d", len(events))
	}
}

func TestManager_EventLogOrdering(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []string{"IN_PROGRESS", "COMPLETE"} {
		event := &types.EventRecord{
			Stack:     "web",
			Resource:  "server",
			Action:    "CREATE",
			Status:    status,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := m.AppendEvent(ctx, "acme", event); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	events, err := m.ListEvents(ctx, "acme", "web")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != "IN_PROGRESS" || events[1].Status != "COMPLETE" {
		t.Errorf("events out of order: %+v", events)
	}
	if events[0].ID == "" {
		t.Error("event id not assigned")
	}
}

func TestManager_Lock(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	scope := LockScope{Tenant: "acme", Stack: "web", Operation: "update", Who: "tester"}
	lock, err := m.Lock(ctx, scope)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	if _, err := m.Lock(ctx, scope); err == nil {
		t.Error("second lock should fail while held")
	} else {
		var lockErr *backend.LockError
		if !errors.As(err, &lockErr) {
			t.Errorf("expected LockError, got %T", err)
		}
	}

	if err := lock.Unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	lock2, err := m.Lock(ctx, scope)
	if err != nil {
		t.Fatalf("relock after unlock failed: %v", err)
	}
	_ = lock2.Unlock(ctx)
}
