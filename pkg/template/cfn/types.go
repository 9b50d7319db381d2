// Package cfn implements the CloudFormation-compatible template dialect.
package cfn

import (
	"gopkg.in/yaml.v3"
)

// VersionKey is the dialect's version marker key.
const VersionKey = "AWSTemplateFormatVersion"

// Schema represents a template in the cfn dialect.
type Schema struct {
	Version     string `yaml:"AWSTemplateFormatVersion"`
	Description string `yaml:"Description,omitempty"`

	Parameters map[string]Parameter `yaml:"Parameters,omitempty"`
	Resources  map[string]Resource  `yaml:"Resources,omitempty"`
	Outputs    map[string]Output    `yaml:"Outputs,omitempty"`

	Mappings map[string]map[string]map[string]interface{} `yaml:"Mappings,omitempty"`
}

// Parameter represents a parameter declaration in the cfn dialect.
// Constraints use the dialect's flat shorthand fields.
type Parameter struct {
	Type        string       `yaml:"Type"`
	Description string       `yaml:"Description,omitempty"`
	Default     *interface{} `yaml:"Default,omitempty"`

	// NoEcho redacts the bound value in display output.
	NoEcho bool `yaml:"NoEcho,omitempty"`

	AllowedValues  []interface{} `yaml:"AllowedValues,omitempty"`
	AllowedPattern string        `yaml:"AllowedPattern,omitempty"`
	MinLength      *float64      `yaml:"MinLength,omitempty"`
	MaxLength      *float64      `yaml:"MaxLength,omitempty"`
	MinValue       *float64      `yaml:"MinValue,omitempty"`
	MaxValue       *float64      `yaml:"MaxValue,omitempty"`

	ConstraintDescription string `yaml:"ConstraintDescription,omitempty"`
}

// Resource represents a resource entry in the cfn dialect.
type Resource struct {
	Type        string                 `yaml:"Type"`
	Description string                 `yaml:"Description,omitempty"`
	Properties  map[string]interface{} `yaml:"Properties,omitempty"`
	Metadata    map[string]interface{} `yaml:"Metadata,omitempty"`

	// DependsOn accepts a single name or a list of names.
	DependsOn DependsOn `yaml:"DependsOn,omitempty"`

	DeletionPolicy string                 `yaml:"DeletionPolicy,omitempty"`
	UpdatePolicy   map[string]interface{} `yaml:"UpdatePolicy,omitempty"`
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

// Output represents an output entry in the cfn dialect.
type Output struct {
	Description string      `yaml:"Description,omitempty"`
	Value       interface{} `yaml:"Value"`
}

// Parser parses cfn dialect documents. YAML being a superset of JSON, the
// same parser accepts JSON template bodies.
type Parser struct{}

// NewParser creates a new cfn parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseBytes parses a cfn template document.
func (p *Parser) ParseBytes(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}
