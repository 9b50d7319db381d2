// Package template provides parsing, validation and parameter binding for
// stack templates. Dialect-specific documents are normalized into one
// canonical section model (parameters, resources, outputs, mappings); a
// Template is immutable once built, and updates produce a new Template.
package template

import (
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/template/hot"
	"github.com/kiln-io/kiln/pkg/template/internal"
)

// Template is a parsed, validated, dialect-agnostic template.
type Template struct {
	it *internal.InternalTemplate
}

// Dialect returns the source dialect name ("hot" or "cfn").
func (t *Template) Dialect() string {
	return t.it.Dialect
}

// Version returns the version marker value of the source document.
func (t *Template) Version() string {
	return t.it.Version
}

// Description returns the template description.
func (t *Template) Description() string {
	return t.it.Description
}

// ParameterSchemas returns the declared parameter schemas keyed by name.
func (t *Template) ParameterSchemas() map[string]ParameterSchema {
	schemas := make(map[string]ParameterSchema, len(t.it.Parameters))
	for name, ip := range t.it.Parameters {
		schemas[name] = schemaFromInternal(ip)
	}
	return schemas
}

// ResourceNames returns the declared resource names in sorted order.
func (t *Template) ResourceNames() []string {
	names := make([]string, 0, len(t.it.Resources))
	for name := range t.it.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasResource reports whether the template declares the named resource.
func (t *Template) HasResource(name string) bool {
	_, ok := t.it.Resources[name]
	return ok
}

// ResourceDefinition is the public view of one resource declaration.
// Property, metadata and update policy trees may contain unresolved
// function nodes and are deep copies; callers own them.
type ResourceDefinition struct {
	Name        string
	Type        string
	Description string

	Properties map[string]interface{}
	Metadata   map[string]interface{}

	DependsOn []string

	DeletionPolicy string
	UpdatePolicy   map[string]interface{}
}

// Resource returns the named resource definition.
func (t *Template) Resource(name string) (ResourceDefinition, bool) {
	ir, ok := t.it.Resources[name]
	if !ok {
		return ResourceDefinition{}, false
	}
	return definitionFromInternal(ir), true
}

// ResourceDefinitions returns all resource definitions keyed by name.
func (t *Template) ResourceDefinitions() map[string]ResourceDefinition {
	defs := make(map[string]ResourceDefinition, len(t.it.Resources))
	for name, ir := range t.it.Resources {
		defs[name] = definitionFromInternal(ir)
	}
	return defs
}

func definitionFromInternal(ir internal.InternalResource) ResourceDefinition {
	return ResourceDefinition{
		Name:           ir.Name,
		Type:           ir.Type,
		Description:    ir.Description,
		Properties:     internal.CopyTree(ir.Properties).(map[string]interface{}),
		Metadata:       internal.CopyTree(ir.Metadata).(map[string]interface{}),
		DependsOn:      append([]string(nil), ir.DependsOn...),
		DeletionPolicy: ir.DeletionPolicy,
		UpdatePolicy:   internal.CopyTree(ir.UpdatePolicy).(map[string]interface{}),
	}
}

// Output describes one template output.
type Output struct {
	Name        string
	Description string
	Value       interface{}
}

// Outputs returns the declared outputs keyed by name. Value trees are
// copies; mutating them does not affect the template.
func (t *Template) Outputs() map[string]Output {
	outputs := make(map[string]Output, len(t.it.Outputs))
	for name, out := range t.it.Outputs {
		outputs[name] = Output{
			Name:        name,
			Description: out.Description,
			Value:       internal.CopyTree(out.Value),
		}
	}
	return outputs
}

// FindInMap performs the three-level Mappings lookup backing Fn::FindInMap.
func (t *Template) FindInMap(mapName, topKey, secondKey string) (interface{}, error) {
	m, ok := t.it.Mappings[mapName]
	if !ok {
		return nil, errors.InvalidTemplateReference("mapping", mapName)
	}
	top, ok := m[topKey]
	if !ok {
		return nil, errors.InvalidTemplateReference("mapping key", mapName+"/"+topKey)
	}
	value, ok := top[secondKey]
	if !ok {
		return nil, errors.InvalidTemplateReference("mapping key", mapName+"/"+topKey+"/"+secondKey)
	}
	return internal.CopyTree(value), nil
}

// Internal exposes the canonical model for engine use. Callers must treat
// the returned value as read-only.
func (t *Template) Internal() *internal.InternalTemplate {
	return t.it
}

// document builds the generic form used for serialization. Templates always
// serialize in the native dialect, whichever dialect they were parsed from,
// so the output loads back through the dialect-detecting loader.
func (t *Template) document() map[string]interface{} {
	doc := map[string]interface{}{
		hot.VersionKey: t.it.Version,
	}
	if t.it.Description != "" {
		doc["description"] = t.it.Description
	}

	if len(t.it.Parameters) > 0 {
		params := make(map[string]interface{}, len(t.it.Parameters))
		for name, ip := range t.it.Parameters {
			params[name] = parameterDocument(ip)
		}
		doc["parameters"] = params
	}

	if len(t.it.Resources) > 0 {
		resources := make(map[string]interface{}, len(t.it.Resources))
		for name, ir := range t.it.Resources {
			resources[name] = resourceDocument(ir)
		}
		doc["resources"] = resources
	}

	if len(t.it.Outputs) > 0 {
		outputs := make(map[string]interface{}, len(t.it.Outputs))
		for name, out := range t.it.Outputs {
			entry := map[string]interface{}{"value": internal.CopyTree(out.Value)}
			if out.Description != "" {
				entry["description"] = out.Description
			}
			outputs[name] = entry
		}
		doc["outputs"] = outputs
	}

	if len(t.it.Mappings) > 0 {
		doc["mappings"] = internal.CopyTree(mappingsTree(t.it.Mappings))
	}

	return doc
}

func parameterDocument(ip internal.InternalParameter) map[string]interface{} {
	entry := map[string]interface{}{"type": ip.Type}
	if ip.Description != "" {
		entry["description"] = ip.Description
	}
	if ip.HasDefault {
		entry["default"] = ip.Default
	}
	if ip.Hidden {
		entry["hidden"] = true
	}
	if len(ip.Constraints) > 0 {
		var constraints []interface{}
		for _, c := range ip.Constraints {
			constraints = append(constraints, constraintDocument(c))
		}
		entry["constraints"] = constraints
	}
	return entry
}

func constraintDocument(c internal.InternalConstraint) map[string]interface{} {
	entry := map[string]interface{}{}
	if c.Description != "" {
		entry["description"] = c.Description
	}
	switch c.Kind {
	case internal.ConstraintLength, internal.ConstraintRange:
		bounds := map[string]interface{}{}
		if c.Min != nil {
			bounds["min"] = *c.Min
		}
		if c.Max != nil {
			bounds["max"] = *c.Max
		}
		entry[c.Kind] = bounds
	case internal.ConstraintAllowedValues:
		entry[c.Kind] = c.AllowedValues
	case internal.ConstraintPattern:
		entry[c.Kind] = c.Pattern
	case internal.ConstraintCustom:
		entry[c.Kind] = c.Custom
	}
	return entry
}

func resourceDocument(ir internal.InternalResource) map[string]interface{} {
	entry := map[string]interface{}{"type": ir.Type}
	if ir.Description != "" {
		entry["description"] = ir.Description
	}
	if len(ir.Properties) > 0 {
		entry["properties"] = internal.CopyTree(ir.Properties)
	}
	if len(ir.Metadata) > 0 {
		entry["metadata"] = internal.CopyTree(ir.Metadata)
	}
	if len(ir.DependsOn) > 0 {
		entry["depends_on"] = append([]string(nil), ir.DependsOn...)
	}
	if ir.DeletionPolicy != "" && ir.DeletionPolicy != "delete" {
		entry["deletion_policy"] = ir.DeletionPolicy
	}
	if len(ir.UpdatePolicy) > 0 {
		entry["update_policy"] = internal.CopyTree(ir.UpdatePolicy)
	}
	return entry
}

func mappingsTree(m map[string]map[string]map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for name, top := range m {
		topOut := make(map[string]interface{}, len(top))
		for key, second := range top {
			secondOut := make(map[string]interface{}, len(second))
			for k, v := range second {
				secondOut[k] = v
			}
			topOut[key] = secondOut
		}
		out[name] = topOut
	}
	return out
}

// ToYAML serializes the canonical template model.
func (t *Template) ToYAML() ([]byte, error) {
	return yaml.Marshal(t.document())
}

// ToJSON serializes the canonical template model.
func (t *Template) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t.document(), "", "  ")
}
