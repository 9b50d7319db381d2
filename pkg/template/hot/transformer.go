package hot

import (
	"fmt"

	"github.com/kiln-io/kiln/pkg/template/internal"
)

// functionKeys maps hot function names to their canonical forms. Properties,
// metadata and output values are rewritten during transformation so the
// resolver only ever sees canonical function nodes.
var functionKeys = map[string]string{
	"get_param":          "Ref",
	"get_resource":       "Ref",
	"get_attr":           "Fn::GetAtt",
	"find_in_map":        "Fn::FindInMap",
	"list_join":          "Fn::Join",
	"str_split":          "Fn::Split",
	"str_replace":        "Fn::Replace",
	"select":             "Fn::Select",
	"base64":             "Fn::Base64",
	"member_list_to_map": "Fn::MemberListToMap",
	"resource_facade":    "Fn::ResourceFacade",
}

// Transformer converts hot schemas to the internal representation.
type Transformer struct{}

// NewTransformer creates a new hot transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform converts a parsed hot schema to the internal representation.
func (t *Transformer) Transform(schema *Schema) (*internal.InternalTemplate, error) {
	it := &internal.InternalTemplate{
		Dialect:     "hot",
		Version:     schema.Version,
		Description: schema.Description,
		Parameters:  make(map[string]internal.InternalParameter),
		Resources:   make(map[string]internal.InternalResource),
		Outputs:     make(map[string]internal.InternalOutput),
		Mappings:    schema.Mappings,
	}

	for name, param := range schema.Parameters {
		ip, err := t.transformParameter(name, param)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		it.Parameters[name] = ip
	}

	for name, res := range schema.Resources {
		ir, err := t.transformResource(name, res)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", name, err)
		}
		it.Resources[name] = ir
	}

	for name, out := range schema.Outputs {
		it.Outputs[name] = internal.InternalOutput{
			Name:        name,
			Description: out.Description,
			Value:       canonicalizeFunctions(out.Value),
		}
	}

	return it, nil
}

func (t *Transformer) transformParameter(name string, param Parameter) (internal.InternalParameter, error) {
	ip := internal.InternalParameter{
		Name:        name,
		Type:        param.Type,
		Description: param.Description,
		Hidden:      param.Hidden,
	}
	if param.Default != nil {
		ip.Default = *param.Default
		ip.HasDefault = true
	}

	for _, c := range param.Constraints {
		ic, err := t.transformConstraint(c)
		if err != nil {
			return ip, err
		}
		ip.Constraints = append(ip.Constraints, ic)
	}

	return ip, nil
}

func (t *Transformer) transformConstraint(c Constraint) (internal.InternalConstraint, error) {
	ic := internal.InternalConstraint{Description: c.Description}

	switch {
	case c.Length != nil:
		ic.Kind = internal.ConstraintLength
		ic.Min = c.Length.Min
		ic.Max = c.Length.Max
	case c.Range != nil:
		ic.Kind = internal.ConstraintRange
		ic.Min = c.Range.Min
		ic.Max = c.Range.Max
	case len(c.AllowedValues) > 0:
		ic.Kind = internal.ConstraintAllowedValues
		ic.AllowedValues = c.AllowedValues
	case c.AllowedPattern != "":
		ic.Kind = internal.ConstraintPattern
		ic.Pattern = c.AllowedPattern
	case c.Custom != "":
		ic.Kind = internal.ConstraintCustom
		ic.Custom = c.Custom
	default:
		return ic, fmt.Errorf("constraint entry sets no constraint")
	}

	return ic, nil
}

func (t *Transformer) transformResource(name string, res Resource) (internal.InternalResource, error) {
	if res.Type == "" {
		return internal.InternalResource{}, fmt.Errorf("missing type")
	}

	ir := internal.InternalResource{
		Name:        name,
		Type:        res.Type,
		Description: res.Description,
		DependsOn:   res.DependsOn,
	}

	if props := canonicalizeFunctions(res.Properties); props != nil {
		ir.Properties = props.(map[string]interface{})
	}
	if meta := canonicalizeFunctions(res.Metadata); meta != nil {
		ir.Metadata = meta.(map[string]interface{})
	}
	if up := canonicalizeFunctions(res.UpdatePolicy); up != nil {
		ir.UpdatePolicy = up.(map[string]interface{})
	}

	switch res.DeletionPolicy {
	case "", "delete":
		ir.DeletionPolicy = "delete"
	case "retain", "snapshot":
		ir.DeletionPolicy = res.DeletionPolicy
	default:
		return ir, fmt.Errorf("unknown deletion_policy %q", res.DeletionPolicy)
	}

	return ir, nil
}

// canonicalizeFunctions rewrites hot function keys to their canonical names
// throughout a value tree. A function node keeps its single-key shape; only
// the key changes.
func canonicalizeFunctions(v interface{}) interface{} {
	switch tree := v.(type) {
	case map[string]interface{}:
		if tree == nil {
			return nil
		}
		out := make(map[string]interface{}, len(tree))
		for k, item := range tree {
			key := k
			if len(tree) == 1 {
				if canonical, ok := functionKeys[k]; ok {
					key = canonical
				}
			}
			out[key] = canonicalizeFunctions(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(tree))
		for i, item := range tree {
			out[i] = canonicalizeFunctions(item)
		}
		return out
	default:
		return v
	}
}
