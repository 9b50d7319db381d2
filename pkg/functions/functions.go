package functions

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/template"
)

// ResourceResolver supplies live resource information to the resource-ref
// and attribute passes. An ok=false return means the value is not available
// yet and the node is left in place for a later resolution round.
type ResourceResolver interface {
	// HasResource reports whether the named resource exists in the stack.
	HasResource(name string) bool

	// ReferenceID returns the resource's reference id.
	ReferenceID(name string) (string, bool, error)

	// Attribute returns a live attribute of the resource. ok is false while
	// the resource's (action, status) pair is not live.
	Attribute(name, attr string) (interface{}, bool, error)
}

// ParentFacade carries the enclosing parent resource's facade data for
// nested-stack template bodies.
type ParentFacade struct {
	Metadata       map[string]interface{}
	DeletionPolicy string
	UpdatePolicy   map[string]interface{}
}

// Environment supplies everything the pipeline's passes need.
type Environment struct {
	Parameters *template.Parameters
	Template   *template.Template
	Resources  ResourceResolver

	// Parent is non-nil when this template is a nested-stack body.
	Parent *ParentFacade
}

// Pipeline returns the fixed pass order: parameters, resource refs,
// attributes, then string functions. The order is a package contract;
// changing it changes which values later passes can observe.
func Pipeline(env *Environment) []Pass {
	return []Pass{
		{Name: "parameters", Rule: ParameterRefs(env)},
		{Name: "resource-refs", Rule: ResourceRefs(env)},
		{Name: "attributes", Rule: Attributes(env)},
		{Name: "static", Rule: StaticFunctions(env)},
	}
}

// ResolveAll runs the full pipeline over the snippet.
func ResolveAll(snippet interface{}, env *Environment) (interface{}, error) {
	return Run(snippet, Pipeline(env))
}

func matchKey(name string) func(string) bool {
	return func(key string) bool { return key == name }
}

// ParameterRefs resolves Ref nodes naming declared or pseudo parameters.
// A Ref naming a stack resource is left for the resource-ref pass; a Ref
// naming neither fails.
func ParameterRefs(env *Environment) Rule {
	return Rule{
		Match: matchKey("Ref"),
		Handle: func(key string, arg interface{}) (interface{}, error) {
			name, ok := arg.(string)
			if !ok {
				return nil, errors.ValidationError(fmt.Sprintf("Ref requires a string, got %v", arg), nil)
			}
			if env.Parameters != nil {
				if value, ok := env.Parameters.Get(name); ok {
					return value, nil
				}
			}
			if refersToResource(env, name) {
				return node(key, arg), nil
			}
			return nil, errors.UserParameterMissing(name)
		},
	}
}

// ResourceRefs resolves Ref nodes naming stack resources to the resource's
// reference id.
func ResourceRefs(env *Environment) Rule {
	return Rule{
		Match: matchKey("Ref"),
		Handle: func(key string, arg interface{}) (interface{}, error) {
			name, ok := arg.(string)
			if !ok {
				return nil, errors.ValidationError(fmt.Sprintf("Ref requires a string, got %v", arg), nil)
			}
			if !refersToResource(env, name) {
				return nil, errors.UserParameterMissing(name)
			}
			if env.Resources == nil {
				return node(key, arg), nil
			}
			id, ready, err := env.Resources.ReferenceID(name)
			if err != nil {
				return nil, err
			}
			if !ready {
				return node(key, arg), nil
			}
			return id, nil
		},
	}
}

// Attributes resolves Fn::GetAtt nodes against live resources. A node whose
// target resource is not in a live (action, status) pair is left unresolved.
func Attributes(env *Environment) Rule {
	return Rule{
		Match: matchKey("Fn::GetAtt"),
		Handle: func(key string, arg interface{}) (interface{}, error) {
			parts, ok := arg.([]interface{})
			if !ok || len(parts) != 2 {
				return nil, errors.ValidationError(fmt.Sprintf("Fn::GetAtt requires [resource, attribute], got %v", arg), nil)
			}
			name, nameOK := parts[0].(string)
			attr, attrOK := parts[1].(string)
			if !nameOK || !attrOK {
				return nil, errors.ValidationError(fmt.Sprintf("Fn::GetAtt requires string arguments, got %v", arg), nil)
			}
			if !refersToResource(env, name) {
				return nil, errors.InvalidTemplateAttribute(name, attr)
			}
			if env.Resources == nil {
				return node(key, arg), nil
			}
			value, live, err := env.Resources.Attribute(name, attr)
			if err != nil {
				return nil, err
			}
			if !live {
				return node(key, arg), nil
			}
			return value, nil
		},
	}
}

func refersToResource(env *Environment, name string) bool {
	if env.Resources != nil && env.Resources.HasResource(name) {
		return true
	}
	return env.Template != nil && env.Template.HasResource(name)
}

// staticHandler resolves one string/data function.
type staticHandler func(env *Environment, arg interface{}) (interface{}, error)

var staticHandlers = map[string]staticHandler{
	"Fn::FindInMap":       handleFindInMap,
	"Fn::Join":            handleJoin,
	"Fn::Split":           handleSplit,
	"Fn::Replace":         handleReplace,
	"Fn::Select":          handleSelect,
	"Fn::Base64":          handleBase64,
	"Fn::MemberListToMap": handleMemberListToMap,
	"Fn::ResourceFacade":  handleResourceFacade,
}

// StaticFunctions resolves the data and string manipulation functions.
func StaticFunctions(env *Environment) Rule {
	return Rule{
		Match: func(key string) bool {
			_, ok := staticHandlers[key]
			return ok
		},
		Handle: func(key string, arg interface{}) (interface{}, error) {
			return staticHandlers[key](env, arg)
		},
	}
}

func handleFindInMap(env *Environment, arg interface{}) (interface{}, error) {
	parts, ok := arg.([]interface{})
	if !ok || len(parts) != 3 {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::FindInMap requires [map, key, value], got %v", arg), nil)
	}
	keys := make([]string, 3)
	for i, part := range parts {
		s, ok := part.(string)
		if !ok {
			return nil, errors.ValidationError(fmt.Sprintf("Fn::FindInMap requires string arguments, got %v", arg), nil)
		}
		keys[i] = s
	}
	if env.Template == nil {
		return nil, errors.InvalidTemplateReference("mapping", keys[0])
	}
	return env.Template.FindInMap(keys[0], keys[1], keys[2])
}

func handleJoin(env *Environment, arg interface{}) (interface{}, error) {
	parts, ok := arg.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::Join requires [delimiter, list], got %v", arg), nil)
	}
	delim, ok := parts[0].(string)
	if !ok {
		return nil, errors.ValidationError("Fn::Join delimiter must be a string", nil)
	}
	items, ok := parts[1].([]interface{})
	if !ok {
		return nil, errors.ValidationError("Fn::Join requires a list to join", nil)
	}

	strs := make([]string, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case nil:
			strs[i] = ""
		case string:
			strs[i] = v
		case map[string]interface{}, []interface{}:
			// An item still carrying an unresolved node; keep the whole
			// join for a later round.
			return node("Fn::Join", arg), nil
		default:
			strs[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(strs, delim), nil
}

func handleSplit(env *Environment, arg interface{}) (interface{}, error) {
	parts, ok := arg.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::Split requires [delimiter, string], got %v", arg), nil)
	}
	delim, delimOK := parts[0].(string)
	s, strOK := parts[1].(string)
	if !delimOK {
		return nil, errors.ValidationError("Fn::Split delimiter must be a string", nil)
	}
	if !strOK {
		return node("Fn::Split", arg), nil
	}
	pieces := strings.Split(s, delim)
	out := make([]interface{}, len(pieces))
	for i, piece := range pieces {
		out[i] = piece
	}
	return out, nil
}

func handleReplace(env *Environment, arg interface{}) (interface{}, error) {
	parts, ok := arg.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::Replace requires [replacements, string], got %v", arg), nil)
	}
	repl, replOK := parts[0].(map[string]interface{})
	s, strOK := parts[1].(string)
	if !replOK {
		return nil, errors.ValidationError("Fn::Replace replacements must be a map", nil)
	}
	if !strOK {
		return node("Fn::Replace", arg), nil
	}

	// Longest keys first so overlapping placeholders replace
	// deterministically.
	keys := make([]string, 0, len(repl))
	for k := range repl {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		value := repl[k]
		var text string
		switch v := value.(type) {
		case nil:
			text = ""
		case string:
			text = v
		case map[string]interface{}, []interface{}:
			return node("Fn::Replace", arg), nil
		default:
			text = fmt.Sprintf("%v", v)
		}
		s = strings.ReplaceAll(s, k, text)
	}
	return s, nil
}

// handleSelect picks an element from a list or map. An out-of-range index,
// a missing map key, and an empty-string input all yield "" so a "not yet
// available" sentinel can flow through enclosing functions.
func handleSelect(env *Environment, arg interface{}) (interface{}, error) {
	parts, ok := arg.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::Select requires [index, collection], got %v", arg), nil)
	}
	index := parts[0]
	collection := parts[1]

	if s, ok := collection.(string); ok {
		if s == "" {
			return "", nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("Fn::Select input %q is not a list or map", s), nil)
		}
		collection = decoded
	}

	switch coll := collection.(type) {
	case []interface{}:
		n, err := selectIndex(index)
		if err != nil {
			return nil, err
		}
		if n < 0 || n >= len(coll) {
			return "", nil
		}
		return coll[n], nil

	case map[string]interface{}:
		key, ok := index.(string)
		if !ok {
			key = fmt.Sprintf("%v", index)
		}
		value, ok := coll[key]
		if !ok {
			return "", nil
		}
		return value, nil

	case nil:
		return "", nil
	}

	return nil, errors.ValidationError(fmt.Sprintf("Fn::Select cannot select from %v", collection), nil)
}

func selectIndex(index interface{}) (int, error) {
	switch v := index.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.ValidationError(fmt.Sprintf("Fn::Select index %q is not a number", v), nil)
		}
		return n, nil
	}
	return 0, errors.ValidationError(fmt.Sprintf("Fn::Select index %v is not a number", index), nil)
}

func handleBase64(env *Environment, arg interface{}) (interface{}, error) {
	s, ok := arg.(string)
	if !ok {
		return node("Fn::Base64", arg), nil
	}
	return base64.StdEncoding.EncodeToString([]byte(s)), nil
}

// handleMemberListToMap rebuilds a map from a flattened "index.key=value"
// list. The arguments are the field name carrying keys, the field name
// carrying values, and the flattened list.
func handleMemberListToMap(env *Environment, arg interface{}) (interface{}, error) {
	parts, ok := arg.([]interface{})
	if !ok || len(parts) != 3 {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::MemberListToMap requires [key name, value name, list], got %v", arg), nil)
	}
	keyName, keyOK := parts[0].(string)
	valueName, valueOK := parts[1].(string)
	items, listOK := parts[2].([]interface{})
	if !keyOK || !valueOK || !listOK {
		return nil, errors.ValidationError("Fn::MemberListToMap requires two string names and a list", nil)
	}

	// groups[index][field] = text
	groups := make(map[string]map[string]string)
	var order []string
	for _, item := range items {
		entry, ok := item.(string)
		if !ok {
			return nil, errors.ValidationError(fmt.Sprintf("Fn::MemberListToMap list items must be strings, got %v", item), nil)
		}
		eq := strings.Index(entry, "=")
		if eq < 0 {
			return nil, errors.ValidationError(fmt.Sprintf("Fn::MemberListToMap item %q is not key=value", entry), nil)
		}
		path, text := entry[:eq], entry[eq+1:]

		segments := strings.Split(path, ".")
		if len(segments) < 2 {
			return nil, errors.ValidationError(fmt.Sprintf("Fn::MemberListToMap item %q is not index.field=value", entry), nil)
		}
		field := segments[len(segments)-1]
		index := segments[len(segments)-2]

		if _, ok := groups[index]; !ok {
			groups[index] = make(map[string]string)
			order = append(order, index)
		}
		groups[index][field] = text
	}

	out := make(map[string]interface{}, len(order))
	for _, index := range order {
		group := groups[index]
		key, ok := group[keyName]
		if !ok {
			continue
		}
		out[key] = group[valueName]
	}
	return out, nil
}

func handleResourceFacade(env *Environment, arg interface{}) (interface{}, error) {
	field, ok := arg.(string)
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("Fn::ResourceFacade requires a string, got %v", arg), nil)
	}
	if env.Parent == nil {
		return nil, errors.InvalidTemplateReference("parent resource", field)
	}
	switch field {
	case "Metadata":
		return env.Parent.Metadata, nil
	case "DeletionPolicy":
		return env.Parent.DeletionPolicy, nil
	case "UpdatePolicy":
		return env.Parent.UpdatePolicy, nil
	}
	return nil, errors.ValidationError(fmt.Sprintf("Fn::ResourceFacade cannot access %q", field), nil)
}
