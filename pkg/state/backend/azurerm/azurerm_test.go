package azurerm

import (
	"strings"
	"testing"
)

func TestNewBackend_MissingStorageAccount(t *testing.T) {
	_, err := NewBackend(map[string]string{"container_name": "state"})
	if err == nil {
		t.Fatal("expected error for missing storage account")
	}
	if !strings.Contains(err.Error(), "storage_account_name") {
		t.Errorf("expected error message to mention storage_account_name, got: %v", err)
	}
}

func TestNewBackend_MissingContainer(t *testing.T) {
	_, err := NewBackend(map[string]string{"storage_account_name": "kilnstate"})
	if err == nil {
		t.Fatal("expected error for missing container")
	}
	if !strings.Contains(err.Error(), "container_name") {
		t.Errorf("expected error message to mention container_name, got: %v", err)
	}
}

func TestNewBackend_SharedKey(t *testing.T) {
	b, err := NewBackend(map[string]string{
		"storage_account_name": "kilnstate",
		"container_name":       "state",
		"access_key":           "dGVzdC1rZXk=",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Type() != "azurerm" {
		t.Errorf("expected type 'azurerm', got %q", b.Type())
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
