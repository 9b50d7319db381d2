package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kiln-io/kiln/pkg/state/backend"
)

// mockS3Server simulates enough of the S3 API for backend tests.
type mockS3Server struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3Server() *mockS3Server {
	return &mockS3Server{objects: make(map[string][]byte)}
}

func (m *mockS3Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Path-style addressing: /bucket/key
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	bucket := parts[0]
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}

	if key == "" && r.URL.Query().Get("list-type") == "2" {
		m.handleList(w, r, bucket)
		return
	}

	fullKey := bucket + "/" + key
	switch r.Method {
	case http.MethodGet:
		m.handleGet(w, fullKey)
	case http.MethodPut:
		m.handlePut(w, r, fullKey)
	case http.MethodDelete:
		delete(m.objects, fullKey)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodHead:
		if _, ok := m.objects[fullKey]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *mockS3Server) handleGet(w http.ResponseWriter, key string) {
	data, ok := m.objects[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code></Error>`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (m *mockS3Server) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.objects[key] = data
	w.WriteHeader(http.StatusOK)
}

func (m *mockS3Server) handleList(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, bucket+"/") {
			objectKey := strings.TrimPrefix(key, bucket+"/")
			if prefix == "" || strings.HasPrefix(objectKey, prefix) {
				keys = append(keys, objectKey)
			}
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	response := `<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>` + bucket + `</Name>`
	for _, key := range keys {
		response += `<Contents><Key>` + key + `</Key></Contents>`
	}
	response += `</ListBucketResult>`
	_, _ = w.Write([]byte(response))
}

func newTestBackend(t *testing.T) backend.Backend {
	t.Helper()
	server := httptest.NewServer(newMockS3Server())
	t.Cleanup(server.Close)

	b, err := NewBackend(map[string]string{
		"bucket":           "test-bucket",
		"endpoint":         server.URL,
		"access_key":       "test-key",
		"secret_key":       "test-secret",
		"force_path_style": "true",
	})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return b
}

func TestNewBackend_MissingBucket(t *testing.T) {
	_, err := NewBackend(map[string]string{"region": "us-east-1"})
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Errorf("expected error message to mention bucket, got: %v", err)
	}
}

func TestBackend_Type(t *testing.T) {
	b := newTestBackend(t)
	if b.Type() != "s3" {
		t.Errorf("expected type 's3', got %q", b.Type())
	}
}

func TestBackend_ReadWriteDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	statePath := "stacks/acme/web/stack.state.json"
	data := []byte(`{"name": "web"}`)

	if err := b.Write(ctx, statePath, bytes.NewReader(data)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader, err := b.Read(ctx, statePath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	got, _ := io.ReadAll(reader)
	reader.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("expected %s, got %s", data, got)
	}

	if err := b.Delete(ctx, statePath); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := b.Read(ctx, statePath); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBackend_List(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_ = b.Write(ctx, "stacks/acme/web/stack.state.json", bytes.NewReader([]byte("{}")))
	_ = b.Write(ctx, "stacks/acme/db/stack.state.json", bytes.NewReader([]byte("{}")))
	_ = b.Write(ctx, "stacks/other/app/stack.state.json", bytes.NewReader([]byte("{}")))

	paths, err := b.List(ctx, "stacks/acme")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %d: %v", len(paths), paths)
	}
}

func TestBackend_Lock(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	info := backend.LockInfo{Who: "test-user", Operation: "update"}

	lock, err := b.Lock(ctx, "stacks/acme/web", info)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	if _, err := b.Lock(ctx, "stacks/acme/web", info); err == nil {
		t.Error("expected conflict while lock held")
	} else {
		var lockErr *backend.LockError
		if !errors.As(err, &lockErr) {
			t.Errorf("expected LockError, got %T", err)
		} else if lockErr.Info.Who != "test-user" {
			t.Errorf("lock holder not reported: %+v", lockErr.Info)
		}
	}

	if err := lock.Unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if _, err := b.Lock(ctx, "stacks/acme/web", info); err != nil {
		t.Errorf("relock after unlock failed: %v", err)
	}
}

func TestBackend_fullPath(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		path     string
		expected string
	}{
		{"no prefix", "", "stack.state.json", "stack.state.json"},
		{"with prefix", "team/staging", "stack.state.json", "team/staging/stack.state.json"},
		{"nested path", "kiln", "stacks/acme/web/stack.state.json", "kiln/stacks/acme/web/stack.state.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Backend{prefix: tt.prefix}
			if got := b.fullPath(tt.path); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
