package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiln-io/kiln/pkg/state/backend"
)

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(map[string]string{"path": t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Type() != "local" {
		t.Errorf("expected type 'local', got %q", b.Type())
	}
}

func TestBackend_ReadWrite(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	ctx := context.Background()
	testPath := "stacks/acme/web/stack.state.json"
	testData := []byte(`{"name": "web"}`)

	if err := b.Write(ctx, testPath, bytes.NewReader(testData)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader, err := b.Read(ctx, testPath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read all failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Errorf("expected %s, got %s", testData, data)
	}
}

func TestBackend_ReadNotFound(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	_, err := b.Read(context.Background(), "nonexistent")
	if err != backend.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBackend_Delete(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	ctx := context.Background()
	testPath := "stacks/acme/web/stack.state.json"

	_ = b.Write(ctx, testPath, bytes.NewReader([]byte("{}")))

	if err := b.Delete(ctx, testPath); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if exists, _ := b.Exists(ctx, testPath); exists {
		t.Error("expected file to not exist after delete")
	}

	// Deleting an absent path is not an error
	if err := b.Delete(ctx, testPath); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
}

func TestBackend_List(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	ctx := context.Background()
	_ = b.Write(ctx, "stacks/acme/web/stack.state.json", bytes.NewReader([]byte("{}")))
	_ = b.Write(ctx, "stacks/acme/db/stack.state.json", bytes.NewReader([]byte("{}")))
	_ = b.Write(ctx, "stacks/other/app/stack.state.json", bytes.NewReader([]byte("{}")))

	paths, err := b.List(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("expected 3 paths, got %d: %v", len(paths), paths)
	}

	paths, err = b.List(ctx, "stacks/acme")
	if err != nil {
		t.Fatalf("list with prefix failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %d: %v", len(paths), paths)
	}
	for _, p := range paths {
		if filepath.Separator != '/' && bytes.ContainsRune([]byte(p), filepath.Separator) {
			t.Errorf("listed path %q not slash separated", p)
		}
	}
}

func TestBackend_Exists(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	ctx := context.Background()
	testPath := "stacks/acme/web/stack.state.json"

	exists, err := b.Exists(ctx, testPath)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Error("expected file to not exist")
	}

	_ = b.Write(ctx, testPath, bytes.NewReader([]byte("{}")))

	exists, err = b.Exists(ctx, testPath)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists {
		t.Error("expected file to exist")
	}
}

func TestBackend_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	b, _ := NewBackend(map[string]string{"path": tmpDir})

	ctx := context.Background()
	testPath := "stacks/acme/web"

	lock, err := b.Lock(ctx, testPath, backend.LockInfo{Who: "test-user", Operation: "update"})
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if lock.ID() == "" {
		t.Error("lock id not assigned")
	}

	lockPath := filepath.Join(tmpDir, filepath.FromSlash(testPath)+".lock")
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Error("expected lock file to exist")
	}

	if err := lock.Unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed after unlock")
	}
}

func TestBackend_LockConflict(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	ctx := context.Background()
	testPath := "stacks/acme/web"
	info := backend.LockInfo{Who: "test-user", Operation: "update"}

	lock1, err := b.Lock(ctx, testPath, info)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	defer func() { _ = lock1.Unlock(ctx) }()

	if _, err := b.Lock(ctx, testPath, info); err == nil {
		t.Error("expected error for conflicting lock")
	}
}

func TestBackend_OverwriteIsAtomicReplace(t *testing.T) {
	b, _ := NewBackend(map[string]string{"path": t.TempDir()})

	ctx := context.Background()
	testPath := "stacks/acme/web/stack.state.json"

	_ = b.Write(ctx, testPath, bytes.NewReader([]byte(`{"version": 1}`)))
	if err := b.Write(ctx, testPath, bytes.NewReader([]byte(`{"version": 2}`))); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader, _ := b.Read(ctx, testPath)
	data, _ := io.ReadAll(reader)
	reader.Close()

	if string(data) != `{"version": 2}` {
		t.Errorf("expected replaced content, got %s", data)
	}
}
