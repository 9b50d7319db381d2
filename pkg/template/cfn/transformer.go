package cfn

import (
	"fmt"
	"strings"

	"github.com/kiln-io/kiln/pkg/template/internal"
)

// parameterTypes maps cfn parameter type names to canonical types.
var parameterTypes = map[string]string{
	"String":             "string",
	"Number":             "number",
	"CommaDelimitedList": "comma_delimited_list",
	"Json":               "json",
	"Boolean":            "boolean",
}

// Transformer converts cfn schemas to the internal representation.
type Transformer struct{}

// NewTransformer creates a new cfn transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform converts a parsed cfn schema to the internal representation.
// Function nodes (Ref, Fn::*) already use their canonical names in this
// dialect and pass through untouched.
func (t *Transformer) Transform(schema *Schema) (*internal.InternalTemplate, error) {
	it := &internal.InternalTemplate{
		Dialect:     "cfn",
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
			Value:       out.Value,
		}
	}

	return it, nil
}

func (t *Transformer) transformParameter(name string, param Parameter) (internal.InternalParameter, error) {
	canonicalType, ok := parameterTypes[param.Type]
	if !ok {
		return internal.InternalParameter{}, fmt.Errorf("unknown parameter type %q", param.Type)
	}

	ip := internal.InternalParameter{
		Name:        name,
		Type:        canonicalType,
		Description: param.Description,
		Hidden:      param.NoEcho,
	}
	if param.Default != nil {
		ip.Default = *param.Default
		ip.HasDefault = true
	}

	// Fold the flat MinLength/MaxLength and MinValue/MaxValue shorthand into
	// canonical length/range constraints.
	if param.MinLength != nil || param.MaxLength != nil {
		ip.Constraints = append(ip.Constraints, internal.InternalConstraint{
			Kind:        internal.ConstraintLength,
			Description: param.ConstraintDescription,
			Min:         param.MinLength,
			Max:         param.MaxLength,
		})
	}
	if param.MinValue != nil || param.MaxValue != nil {
		ip.Constraints = append(ip.Constraints, internal.InternalConstraint{
			Kind:        internal.ConstraintRange,
			Description: param.ConstraintDescription,
			Min:         param.MinValue,
			Max:         param.MaxValue,
		})
	}
	if len(param.AllowedValues) > 0 {
		ip.Constraints = append(ip.Constraints, internal.InternalConstraint{
			Kind:          internal.ConstraintAllowedValues,
			Description:   param.ConstraintDescription,
			AllowedValues: param.AllowedValues,
		})
	}
	if param.AllowedPattern != "" {
		ip.Constraints = append(ip.Constraints, internal.InternalConstraint{
			Kind:        internal.ConstraintPattern,
			Description: param.ConstraintDescription,
			Pattern:     param.AllowedPattern,
		})
	}

	return ip, nil
}

func (t *Transformer) transformResource(name string, res Resource) (internal.InternalResource, error) {
	if res.Type == "" {
		return internal.InternalResource{}, fmt.Errorf("missing Type")
	}

	ir := internal.InternalResource{
		Name:         name,
		Type:         res.Type,
		Description:  res.Description,
		Properties:   res.Properties,
		Metadata:     res.Metadata,
		DependsOn:    res.DependsOn,
		UpdatePolicy: res.UpdatePolicy,
	}

	switch strings.ToLower(res.DeletionPolicy) {
	case "", "delete":
		ir.DeletionPolicy = "delete"
	case "retain":
		ir.DeletionPolicy = "retain"
	case "snapshot":
		ir.DeletionPolicy = "snapshot"
	default:
		return ir, fmt.Errorf("unknown DeletionPolicy %q", res.DeletionPolicy)
	}

	return ir, nil
}
