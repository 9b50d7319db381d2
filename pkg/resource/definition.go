package resource

import "github.com/kiln-io/kiln/pkg/template"

// Deletion policies.
const (
	DeletionPolicyDelete   = "delete"
	DeletionPolicyRetain   = "retain"
	DeletionPolicySnapshot = "snapshot"
)

// Definition is the template-side description of a resource: everything
// the executor needs to act on it, with property trees still carrying
// unresolved function nodes.
type Definition struct {
	Name        string
	Type        string
	Description string

	Properties map[string]interface{}
	Metadata   map[string]interface{}

	DependsOn []string

	DeletionPolicy string
	UpdatePolicy   map[string]interface{}
}

// DefinitionFrom converts a template resource declaration.
func DefinitionFrom(td template.ResourceDefinition) Definition {
	policy := td.DeletionPolicy
	if policy == "" {
		policy = DeletionPolicyDelete
	}
	return Definition{
		Name:           td.Name,
		Type:           td.Type,
		Description:    td.Description,
		Properties:     td.Properties,
		Metadata:       td.Metadata,
		DependsOn:      td.DependsOn,
		DeletionPolicy: policy,
		UpdatePolicy:   td.UpdatePolicy,
	}
}

// DefinitionsFrom converts every resource declaration in a template.
func DefinitionsFrom(t *template.Template) map[string]Definition {
	defs := make(map[string]Definition)
	for name, td := range t.ResourceDefinitions() {
		defs[name] = DefinitionFrom(td)
	}
	return defs
}
