// Package backend defines the pluggable blob storage interface that kiln
// state is persisted through, plus the factory registry the concrete
// backends register themselves with.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when the requested path does not exist.
var ErrNotFound = errors.New("state not found")

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("state is locked")

// Backend is a blob store holding serialized state. Paths are
// forward-slash separated and relative to the backend's root.
type Backend interface {
	// Type returns the backend type key (e.g. "local", "s3").
	Type() string

	// Read opens the blob at path. Returns ErrNotFound if absent.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores the blob at path, replacing any existing content.
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes the blob at path. Deleting an absent path succeeds.
	Delete(ctx context.Context, path string) error

	// List returns the paths of all blobs under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether a blob exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Lock acquires an advisory lock covering the given path. Returns a
	// LockError wrapping ErrLocked when the lock is already held.
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held advisory lock.
type Lock interface {
	ID() string
	Unlock(ctx context.Context) error
	Info() LockInfo
}

// LockInfo describes a held or requested lock.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Who       string    `json:"who"`
	Created   time.Time `json:"created"`
}

// LockError reports a failed lock acquisition along with the holder.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("locked by %s (operation %q, since %s): %v",
		e.Info.Who, e.Info.Operation, e.Info.Created.Format(time.RFC3339), e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	// Type is the backend type key.
	Type string

	// Config holds backend-specific settings.
	Config map[string]string
}

// Factory creates a backend from its settings map.
type Factory func(config map[string]string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a backend factory. Called from backend package init
// functions; registering the same type twice panics.
func Register(typeName string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[typeName]; exists {
		panic(fmt.Sprintf("backend: %q registered twice", typeName))
	}
	registry[typeName] = factory
}

// Create instantiates the backend selected by config.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q (registered: %v)", config.Type, Types())
	}
	return factory(config.Config)
}

// Types returns the registered backend type keys, sorted.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
