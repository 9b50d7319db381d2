package graph

import (
	"fmt"
	"sort"

	"github.com/kiln-io/kiln/pkg/errors"
)

// Graph is a dependency graph of the resources in one stack.
type Graph struct {
	// All nodes in the graph, keyed by resource name
	Nodes map[string]*Node
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.Nodes[node.Name]; exists {
		return errors.New(errors.ErrCodeValidation, fmt.Sprintf("resource %q declared more than once", node.Name))
	}
	g.Nodes[node.Name] = node
	return nil
}

// GetNode returns a node by resource name, or nil.
func (g *Graph) GetNode(name string) *Node {
	return g.Nodes[name]
}

// AddEdge adds a dependency edge from dependent to dependency.
func (g *Graph) AddEdge(dependent, dependency string) error {
	from := g.GetNode(dependent)
	if from == nil {
		return errors.InvalidTemplateReference("resource", dependent)
	}

	to := g.GetNode(dependency)
	if to == nil {
		return errors.InvalidTemplateReference("resource", dependency)
	}

	from.AddDependency(dependency)
	to.AddDependent(dependent)

	return nil
}

// Names returns all resource names in the graph, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopologicalSort returns the nodes in dependency order: every node appears
// after all of its dependencies. Ties are broken by resource name so the
// order is deterministic for a given template.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	// Kahn's algorithm
	inDegree := make(map[string]int)
	for name := range g.Nodes {
		inDegree[name] = len(g.Nodes[name].DependsOn)
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	// Sort queue for deterministic order
	sort.Strings(queue)

	var result []*Node
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		node := g.Nodes[name]
		result = append(result, node)

		for _, dependent := range node.DependedOnBy {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
				sort.Strings(queue)
			}
		}
	}

	// Any node left unprocessed sits on a cycle
	if len(result) != len(g.Nodes) {
		processed := make(map[string]bool)
		for _, n := range result {
			processed[n.Name] = true
		}

		var cycleNodes []string
		for name := range g.Nodes {
			if !processed[name] {
				cycleNodes = append(cycleNodes, name)
			}
		}
		sort.Strings(cycleNodes)

		return nil, errors.CircularDependency(cycleNodes)
	}

	return result, nil
}

// ReverseTopologicalSort returns the nodes in reverse dependency order:
// every node appears before all of its dependencies. This is the order
// resources are deleted in.
func (g *Graph) ReverseTopologicalSort() ([]*Node, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted, nil
}
