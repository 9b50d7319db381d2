// Package internal contains the canonical internal representation for
// templates. All dialect-specific schemas transform to these types, so no
// dialect-local key name or constraint shorthand survives past the loader.
package internal

// InternalTemplate is the canonical internal representation.
type InternalTemplate struct {
	// Dialect this template was parsed from (e.g. "hot", "cfn")
	Dialect string

	// Version marker value from the source document
	Version string

	Description string

	Parameters map[string]InternalParameter
	Resources  map[string]InternalResource
	Outputs    map[string]InternalOutput

	// Mappings is the three-level lookup table consumed by Fn::FindInMap.
	Mappings map[string]map[string]map[string]interface{}
}

// InternalParameter is a canonical parameter schema.
type InternalParameter struct {
	Name        string
	Type        string // string, number, comma_delimited_list, json, boolean
	Description string

	Default    interface{}
	HasDefault bool

	// Hidden redacts the bound value in any display output.
	Hidden bool

	Constraints []InternalConstraint
}

// Constraint kinds.
const (
	ConstraintLength        = "length"
	ConstraintRange         = "range"
	ConstraintAllowedValues = "allowed_values"
	ConstraintPattern       = "allowed_pattern"
	ConstraintCustom        = "custom_constraint"
)

// InternalConstraint is a canonical parameter constraint. Dialect shorthand
// (e.g. MinLength/MaxLength pairs) is folded into these by the transformers.
type InternalConstraint struct {
	Kind        string
	Description string

	// Length and range bounds; nil means unbounded on that side.
	Min *float64
	Max *float64

	AllowedValues []interface{}
	Pattern       string

	// Custom names an externally registered validator.
	Custom string
}

// InternalResource is a canonical resource entry. Property and metadata
// trees may contain unresolved function nodes.
type InternalResource struct {
	Name        string
	Type        string
	Description string

	Properties map[string]interface{}
	Metadata   map[string]interface{}

	DependsOn []string

	DeletionPolicy string // delete, retain, snapshot ("" means delete)
	UpdatePolicy   map[string]interface{}
}

// InternalOutput is a canonical output entry.
type InternalOutput struct {
	Name        string
	Description string
	Value       interface{}
}

// CopyTree deep-copies a nested map/slice/scalar tree. Scalars are shared;
// every map and slice is fresh.
func CopyTree(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = CopyTree(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = CopyTree(item)
		}
		return out
	default:
		return v
	}
}
