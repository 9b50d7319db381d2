package resource

import "github.com/kiln-io/kiln/pkg/template"

func templateResourceFixture(deletionPolicy string) template.ResourceDefinition {
	return template.ResourceDefinition{
		Name:           "db",
		Type:           "kiln::util::null",
		Properties:     map[string]interface{}{"size": 10},
		DeletionPolicy: deletionPolicy,
	}
}
