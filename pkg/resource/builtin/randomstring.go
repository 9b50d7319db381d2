package builtin

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/kiln-io/kiln/pkg/resource"
)

// TypeRandomString generates a random string at create time. The value is
// exposed through the "value" attribute and stays stable for the life of
// the resource; changing "length" or "character_classes" replaces it.
const TypeRandomString = "kiln::util::random_string"

const defaultRandomLength = 32

var characterClasses = map[string]string{
	"lettersdigits": "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
	"letters":       "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"lowercase":     "abcdefghijklmnopqrstuvwxyz",
	"uppercase":     "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"digits":        "0123456789",
	"hexdigits":     "0123456789abcdef",
}

var sharedRandomString = &randomStringProvider{values: map[string]string{}}

func init() {
	resource.Register(TypeRandomString, func() (resource.Provider, error) {
		return sharedRandomString, nil
	})
}

type randomStringProvider struct {
	mu     sync.Mutex
	values map[string]string
}

func (p *randomStringProvider) TypeName() string { return TypeRandomString }

func (p *randomStringProvider) Create(ctx context.Context, name string, properties map[string]interface{}) (string, error) {
	length := defaultRandomLength
	if raw, ok := properties["length"]; ok {
		switch v := raw.(type) {
		case int:
			length = v
		case float64:
			length = int(v)
		default:
			return "", fmt.Errorf("length must be a number, got %T", raw)
		}
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	alphabet := characterClasses["lettersdigits"]
	if raw, ok := properties["character_classes"].(string); ok {
		alphabet, ok = characterClasses[raw]
		if !ok {
			return "", fmt.Errorf("unknown character class %q", raw)
		}
	}

	value, err := randomString(length, alphabet)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.values[id] = value
	p.mu.Unlock()
	return id, nil
}

func (p *randomStringProvider) Update(ctx context.Context, physicalID string, properties map[string]interface{}) error {
	return fmt.Errorf("random strings cannot be updated in place")
}

func (p *randomStringProvider) Delete(ctx context.Context, physicalID string) error {
	p.mu.Lock()
	delete(p.values, physicalID)
	p.mu.Unlock()
	return nil
}

func (p *randomStringProvider) Suspend(ctx context.Context, physicalID string) error { return nil }

func (p *randomStringProvider) Resume(ctx context.Context, physicalID string) error { return nil }

func (p *randomStringProvider) Attribute(ctx context.Context, physicalID, name string) (interface{}, bool, error) {
	if name != "value" {
		return nil, false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.values[physicalID]
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

func (p *randomStringProvider) UpdateAllowedProperties() []string { return nil }

func randomString(length int, alphabet string) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
