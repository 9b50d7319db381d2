package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/template/internal"
)

// ParameterType identifies a canonical parameter type.
type ParameterType string

const (
	TypeString             ParameterType = "string"
	TypeNumber             ParameterType = "number"
	TypeCommaDelimitedList ParameterType = "comma_delimited_list"
	TypeJSON               ParameterType = "json"
	TypeBoolean            ParameterType = "boolean"
)

// Pseudo parameter names. They are injected read-only at bind time and
// cannot be supplied by the user.
const (
	PseudoStackID   = "kiln.stack_id"
	PseudoStackName = "kiln.stack_name"
	PseudoRegion    = "kiln.region"
)

// ParameterSchema describes one declared parameter.
type ParameterSchema struct {
	Name        string
	Type        ParameterType
	Description string

	Default    interface{}
	HasDefault bool

	// Hidden redacts the bound value in display output; it never affects
	// how the value is used.
	Hidden bool

	Constraints []Constraint
}

// Constraint is a validation rule attached to a parameter schema.
type Constraint struct {
	Kind        string
	Description string
	Min         *float64
	Max         *float64

	AllowedValues []interface{}
	Pattern       string

	// Custom names an externally registered validator; it is carried
	// through for the policy layer and not evaluated here.
	Custom string
}

func schemaFromInternal(ip internal.InternalParameter) ParameterSchema {
	ps := ParameterSchema{
		Name:        ip.Name,
		Type:        ParameterType(ip.Type),
		Description: ip.Description,
		Default:     ip.Default,
		HasDefault:  ip.HasDefault,
		Hidden:      ip.Hidden,
	}
	for _, c := range ip.Constraints {
		ps.Constraints = append(ps.Constraints, Constraint{
			Kind:          c.Kind,
			Description:   c.Description,
			Min:           c.Min,
			Max:           c.Max,
			AllowedValues: c.AllowedValues,
			Pattern:       c.Pattern,
			Custom:        c.Custom,
		})
	}
	return ps
}

// Parameter is a schema bound to a concrete value.
type Parameter struct {
	Schema ParameterSchema
	value  interface{}
}

// Value returns the bound, type-converted value.
func (p *Parameter) Value() interface{} {
	return p.value
}

// String returns the value for display, redacted when the schema is hidden.
func (p *Parameter) String() string {
	if p.Schema.Hidden {
		return "******"
	}
	return fmt.Sprintf("%v", p.value)
}

// PseudoParameters carries the read-only values injected into every bind.
type PseudoParameters struct {
	StackID   string
	StackName string
	Region    string
}

// Parameters is the bound parameter set for one stack.
type Parameters struct {
	params map[string]*Parameter
	pseudo map[string]interface{}
}

// Bind validates user-supplied values against the declared schemas and
// returns the bound set. Unknown supplied names are rejected; a declared
// parameter with neither a value nor a default is rejected.
func Bind(schemas map[string]ParameterSchema, user map[string]interface{}, pseudo PseudoParameters) (*Parameters, error) {
	var unknown []string
	for name := range user {
		if _, ok := schemas[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.UnknownUserParameter(unknown)
	}

	p := &Parameters{
		params: make(map[string]*Parameter, len(schemas)),
		pseudo: map[string]interface{}{
			PseudoStackID:   pseudo.StackID,
			PseudoStackName: pseudo.StackName,
			PseudoRegion:    pseudo.Region,
		},
	}

	for name, schema := range schemas {
		raw, supplied := user[name]
		if !supplied {
			if !schema.HasDefault {
				return nil, errors.UserParameterMissing(name)
			}
			raw = schema.Default
		}

		value, err := convert(schema.Type, raw)
		if err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("parameter %q: %v", name, err), map[string]interface{}{
				"parameter": name,
			})
		}
		if err := checkConstraints(schema, value); err != nil {
			return nil, err
		}

		p.params[name] = &Parameter{Schema: schema, value: value}
	}

	return p, nil
}

// Get returns the value of a declared or pseudo parameter.
func (p *Parameters) Get(name string) (interface{}, bool) {
	if v, ok := p.pseudo[name]; ok {
		return v, true
	}
	if param, ok := p.params[name]; ok {
		return param.Value(), true
	}
	return nil, false
}

// Has reports whether the named parameter is declared or pseudo.
func (p *Parameters) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Map returns all bound values, pseudo parameters included.
func (p *Parameters) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p.params)+len(p.pseudo))
	for name, param := range p.params {
		out[name] = param.Value()
	}
	for name, v := range p.pseudo {
		out[name] = v
	}
	return out
}

// Declared returns the bound values of declared parameters only, without
// the pseudo parameters. The result is suitable for re-binding against the
// same schemas.
func (p *Parameters) Declared() map[string]interface{} {
	out := make(map[string]interface{}, len(p.params))
	for name, param := range p.params {
		out[name] = param.Value()
	}
	return out
}

// Redacted returns all values as display strings, hidden parameters
// replaced by a placeholder.
func (p *Parameters) Redacted() map[string]string {
	out := make(map[string]string, len(p.params))
	for name, param := range p.params {
		out[name] = param.String()
	}
	return out
}

// convert coerces a raw value to the schema's canonical type.
func convert(t ParameterType, raw interface{}) (interface{}, error) {
	switch t {
	case TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case int, int64, float64, bool:
			return fmt.Sprintf("%v", v), nil
		}
		return nil, fmt.Errorf("value %v is not a string", raw)

	case TypeNumber:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return v, nil
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, nil
			}
			return nil, fmt.Errorf("value %q is not a number", v)
		}
		return nil, fmt.Errorf("value %v is not a number", raw)

	case TypeCommaDelimitedList:
		switch v := raw.(type) {
		case string:
			if v == "" {
				return []string{}, nil
			}
			parts := strings.Split(v, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts, nil
		case []interface{}:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprintf("%v", item)
			}
			return parts, nil
		case []string:
			return v, nil
		}
		return nil, fmt.Errorf("value %v is not a comma delimited list", raw)

	case TypeJSON:
		switch v := raw.(type) {
		case string:
			var decoded interface{}
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return nil, fmt.Errorf("value is not valid JSON: %w", err)
			}
			return decoded, nil
		case map[string]interface{}, []interface{}:
			return v, nil
		}
		return nil, fmt.Errorf("value %v is not JSON", raw)

	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
			return nil, fmt.Errorf("value %q is not a boolean", v)
		}
		return nil, fmt.Errorf("value %v is not a boolean", raw)
	}

	return nil, fmt.Errorf("unknown parameter type %q", t)
}

func checkConstraints(schema ParameterSchema, value interface{}) error {
	for _, c := range schema.Constraints {
		var err error
		switch c.Kind {
		case internal.ConstraintLength:
			err = checkLength(c, value)
		case internal.ConstraintRange:
			err = checkRange(c, value)
		case internal.ConstraintAllowedValues:
			err = checkAllowedValues(c, value)
		case internal.ConstraintPattern:
			err = checkPattern(c, value)
		case internal.ConstraintCustom:
			// Custom validators belong to an external policy layer.
		}
		if err != nil {
			message := err.Error()
			if c.Description != "" {
				message = c.Description
			}
			return errors.ValidationError(fmt.Sprintf("parameter %q: %s", schema.Name, message), map[string]interface{}{
				"parameter":  schema.Name,
				"constraint": c.Kind,
			})
		}
	}
	return nil
}

func checkLength(c Constraint, value interface{}) error {
	var length int
	switch v := value.(type) {
	case string:
		length = len(v)
	case []string:
		length = len(v)
	case []interface{}:
		length = len(v)
	default:
		return fmt.Errorf("length constraint applies to strings and lists")
	}
	if c.Min != nil && float64(length) < *c.Min {
		return fmt.Errorf("length %d is below minimum %v", length, *c.Min)
	}
	if c.Max != nil && float64(length) > *c.Max {
		return fmt.Errorf("length %d exceeds maximum %v", length, *c.Max)
	}
	return nil
}

func checkRange(c Constraint, value interface{}) error {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case float64:
		n = v
	default:
		return fmt.Errorf("range constraint applies to numbers")
	}
	if c.Min != nil && n < *c.Min {
		return fmt.Errorf("value %v is below minimum %v", n, *c.Min)
	}
	if c.Max != nil && n > *c.Max {
		return fmt.Errorf("value %v exceeds maximum %v", n, *c.Max)
	}
	return nil
}

func checkAllowedValues(c Constraint, value interface{}) error {
	want := fmt.Sprintf("%v", value)
	for _, allowed := range c.AllowedValues {
		if fmt.Sprintf("%v", allowed) == want {
			return nil
		}
	}
	return fmt.Errorf("value %v is not an allowed value", value)
}

func checkPattern(c Constraint, value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("pattern constraint applies to strings")
	}
	re, err := regexp.Compile("^(?:" + c.Pattern + ")$")
	if err != nil {
		return fmt.Errorf("invalid pattern %q", c.Pattern)
	}
	if !re.MatchString(s) {
		return fmt.Errorf("value does not match pattern %q", c.Pattern)
	}
	return nil
}
