// Package hot implements the native kiln template dialect.
package hot

import (
	"gopkg.in/yaml.v3"
)

// VersionKey is the dialect's version marker key.
const VersionKey = "kiln_template_version"

// Schema represents a template in the hot dialect.
type Schema struct {
	Version     string `yaml:"kiln_template_version"`
	Description string `yaml:"description,omitempty"`

	Parameters map[string]Parameter `yaml:"parameters,omitempty"`
	Resources  map[string]Resource  `yaml:"resources,omitempty"`
	Outputs    map[string]Output    `yaml:"outputs,omitempty"`

	Mappings map[string]map[string]map[string]interface{} `yaml:"mappings,omitempty"`
}

// Parameter represents a parameter declaration in the hot dialect.
type Parameter struct {
	Type        string       `yaml:"type"`
	Description string       `yaml:"description,omitempty"`
	Default     *interface{} `yaml:"default,omitempty"`
	Hidden      bool         `yaml:"hidden,omitempty"`
	Constraints []Constraint `yaml:"constraints,omitempty"`
}

// Constraint represents one entry of a parameter's constraints list.
// Exactly one of the constraint fields is set per entry.
type Constraint struct {
	Description string `yaml:"description,omitempty"`

	Length         *Bounds       `yaml:"length,omitempty"`
	Range          *Bounds       `yaml:"range,omitempty"`
	AllowedValues  []interface{} `yaml:"allowed_values,omitempty"`
	AllowedPattern string        `yaml:"allowed_pattern,omitempty"`
	Custom         string        `yaml:"custom_constraint,omitempty"`
}

// Bounds represents min/max bounds for length and range constraints.
type Bounds struct {
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

// Resource represents a resource entry in the hot dialect.
type Resource struct {
	Type        string                 `yaml:"type"`
	Description string                 `yaml:"description,omitempty"`
	Properties  map[string]interface{} `yaml:"properties,omitempty"`
	Metadata    map[string]interface{} `yaml:"metadata,omitempty"`

	// DependsOn accepts a single name or a list of names.
	DependsOn DependsOn `yaml:"depends_on,omitempty"`

	DeletionPolicy string                 `yaml:"deletion_policy,omitempty"`
	UpdatePolicy   map[string]interface{} `yaml:"update_policy,omitempty"`
}

// DependsOn unmarshals either a scalar name or a sequence of names.
type DependsOn []string

// UnmarshalYAML supports both scalar and sequence forms.
func (d *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*d = []string{s}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*d = list
	return nil
}

// Output represents an output entry in the hot dialect.
type Output struct {
	Description string      `yaml:"description,omitempty"`
	Value       interface{} `yaml:"value"`
}

// Parser parses hot dialect documents.
type Parser struct{}

// NewParser creates a new hot parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseBytes parses a hot template document.
func (p *Parser) ParseBytes(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}
