// Package functions resolves intrinsic function nodes embedded in template
// data. Resolution is a pure depth-first rewrite: a single-key map whose key
// matches a rule is replaced by the rule's handler output, with arguments
// resolved innermost-first. Multiple function kinds are resolved by separate
// passes run in a fixed pipeline order.
package functions

// Rule pairs a key matcher with a handler. Handle receives the matched key
// and its already-resolved argument; returning the single-key node unchanged
// leaves it for a later pass.
type Rule struct {
	Match  func(key string) bool
	Handle func(key string, arg interface{}) (interface{}, error)
}

// Resolve walks a nested map/sequence/scalar snippet depth-first and applies
// the rule. The input is never mutated; a new structure is returned.
func Resolve(snippet interface{}, rule Rule) (interface{}, error) {
	switch v := snippet.(type) {
	case map[string]interface{}:
		if len(v) == 1 {
			for key, raw := range v {
				if rule.Match(key) {
					arg, err := Resolve(raw, rule)
					if err != nil {
						return nil, err
					}
					return rule.Handle(key, arg)
				}
			}
		}
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := Resolve(item, rule)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := Resolve(item, rule)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}

// Pass is one named step of the resolution pipeline.
type Pass struct {
	Name string
	Rule Rule
}

// Run applies the passes to the snippet in order. Each pass is idempotent
// and side-effect-free on its input.
func Run(snippet interface{}, passes []Pass) (interface{}, error) {
	current := snippet
	for _, pass := range passes {
		resolved, err := Resolve(current, pass.Rule)
		if err != nil {
			return nil, err
		}
		current = resolved
	}
	return current, nil
}

// node builds the single-key map form of a function node. Handlers use it to
// leave a node unresolved for a later pass or a later resolution round.
func node(key string, arg interface{}) map[string]interface{} {
	return map[string]interface{}{key: arg}
}

// canonicalFunctions is the full set of canonical function keys.
var canonicalFunctions = map[string]bool{
	"Ref":                 true,
	"Fn::GetAtt":          true,
	"Fn::FindInMap":       true,
	"Fn::Join":            true,
	"Fn::Split":           true,
	"Fn::Replace":         true,
	"Fn::Select":          true,
	"Fn::Base64":          true,
	"Fn::MemberListToMap": true,
	"Fn::ResourceFacade":  true,
}

// HasUnresolved reports whether any function node remains in the snippet.
func HasUnresolved(snippet interface{}) bool {
	switch v := snippet.(type) {
	case map[string]interface{}:
		if len(v) == 1 {
			for key := range v {
				if canonicalFunctions[key] {
					return true
				}
			}
		}
		for _, item := range v {
			if HasUnresolved(item) {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if HasUnresolved(item) {
				return true
			}
		}
	}
	return false
}
