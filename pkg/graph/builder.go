package graph

import (
	"fmt"
	"sort"

	"github.com/kiln-io/kiln/pkg/errors"
)

// Source describes one resource to place in the graph: its explicit
// DependsOn list plus the raw template snippets to scan for implicit
// references (properties, metadata, update policy).
type Source struct {
	Name      string
	DependsOn []string
	Snippets  []interface{}
}

// Build constructs a dependency graph from the given resources. Explicit
// DependsOn entries naming unknown resources are an error; implicit Ref and
// Fn::GetAtt references only produce edges when they name a resource in the
// same template, since a Ref may legitimately name a parameter instead.
func Build(sources []Source) (*Graph, error) {
	g := NewGraph()

	for _, src := range sources {
		if err := g.AddNode(NewNode(src.Name)); err != nil {
			return nil, err
		}
	}

	for _, src := range sources {
		for _, dep := range src.DependsOn {
			if dep == src.Name {
				return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("resource %q depends on itself", src.Name))
			}
			if g.GetNode(dep) == nil {
				return nil, errors.InvalidTemplateReference("resource", dep)
			}
			if err := g.AddEdge(src.Name, dep); err != nil {
				return nil, err
			}
		}

		refs := make(map[string]bool)
		for _, snippet := range src.Snippets {
			scanReferences(snippet, refs)
		}

		names := make([]string, 0, len(refs))
		for name := range refs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if name == src.Name || g.GetNode(name) == nil {
				continue
			}
			if err := g.AddEdge(src.Name, name); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

// scanReferences walks a template snippet collecting the names referenced
// by Ref and Fn::GetAtt nodes, including those nested inside the arguments
// of other functions.
func scanReferences(snippet interface{}, out map[string]bool) {
	switch v := snippet.(type) {
	case map[string]interface{}:
		if len(v) == 1 {
			if arg, ok := v["Ref"]; ok {
				if name, ok := arg.(string); ok {
					out[name] = true
				}
				return
			}
			if arg, ok := v["Fn::GetAtt"]; ok {
				if parts, ok := arg.([]interface{}); ok && len(parts) > 0 {
					if name, ok := parts[0].(string); ok {
						out[name] = true
					}
					for _, part := range parts[1:] {
						scanReferences(part, out)
					}
				}
				return
			}
		}
		for _, value := range v {
			scanReferences(value, out)
		}
	case []interface{}:
		for _, item := range v {
			scanReferences(item, out)
		}
	}
}
