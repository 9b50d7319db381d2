package builtin

import (
	"context"
	"testing"

	"github.com/kiln-io/kiln/pkg/resource"
)

func TestNullProvider(t *testing.T) {
	p, err := resource.DefaultRegistry().Provider(TypeNull)
	if err != nil {
		t.Fatalf("null provider not registered: %v", err)
	}

	ctx := context.Background()
	id, err := p.Create(ctx, "noop", map[string]interface{}{"marker": "a"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a physical id")
	}

	value, ok, err := p.Attribute(ctx, id, "marker")
	if err != nil || !ok {
		t.Fatalf("attribute lookup failed: ok=%v err=%v", ok, err)
	}
	if value != "a" {
		t.Errorf("expected marker attribute, got %v", value)
	}

	if _, ok, _ := p.Attribute(ctx, id, "missing"); ok {
		t.Error("unknown attribute should report ok=false")
	}

	if err := p.Delete(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	// Deleting again is not an error
	if err := p.Delete(ctx, id); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
}

func TestRandomStringProvider(t *testing.T) {
	p, err := resource.DefaultRegistry().Provider(TypeRandomString)
	if err != nil {
		t.Fatalf("random string provider not registered: %v", err)
	}

	ctx := context.Background()
	id, err := p.Create(ctx, "secret", map[string]interface{}{
		"length":            16,
		"character_classes": "hexdigits",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	raw, ok, err := p.Attribute(ctx, id, "value")
	if err != nil || !ok {
		t.Fatalf("value attribute missing: ok=%v err=%v", ok, err)
	}
	value := raw.(string)
	if len(value) != 16 {
		t.Errorf("expected 16 chars, got %d", len(value))
	}
	for _, c := range value {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("character %q outside hexdigits class", c)
		}
	}

	// Value is stable across reads
	again, _, _ := p.Attribute(ctx, id, "value")
	if again != raw {
		t.Error("value changed between reads")
	}

	if err := p.Update(ctx, id, nil); err == nil {
		t.Error("expected in-place update to be rejected")
	}
}

func TestRandomStringProvider_BadInputs(t *testing.T) {
	p, _ := resource.DefaultRegistry().Provider(TypeRandomString)
	ctx := context.Background()

	if _, err := p.Create(ctx, "s", map[string]interface{}{"length": -1}); err == nil {
		t.Error("expected error for negative length")
	}
	if _, err := p.Create(ctx, "s", map[string]interface{}{"character_classes": "nope"}); err == nil {
		t.Error("expected error for unknown character class")
	}
}
