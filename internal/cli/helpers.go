package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiln-io/kiln/pkg/stack"
	"github.com/kiln-io/kiln/pkg/state"
	"github.com/kiln-io/kiln/pkg/template"
)

// parseParameters turns repeated key=value flags into a parameter map.
func parseParameters(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[parts[0]] = parts[1]
	}
	return params, nil
}

// loadTemplateFile parses a template from disk.
func loadTemplateFile(path string) (*template.Template, error) {
	if path == "" {
		return nil, fmt.Errorf("a template file is required, use --template")
	}
	tmpl, err := template.NewLoader().Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", path, err)
	}
	return tmpl, nil
}

// restoreStack rehydrates a stack from the state backend.
func restoreStack(ctx context.Context, mgr state.Manager, tenant, name string) (*stack.Stack, error) {
	record, err := mgr.GetStack(ctx, tenant, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load stack %q: %w", name, err)
	}
	s, err := stack.Restore(record, nil, mgr)
	if err != nil {
		return nil, fmt.Errorf("failed to restore stack %q: %w", name, err)
	}
	return s, nil
}
