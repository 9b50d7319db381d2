// Package graph provides dependency graph construction and traversal for kiln
// stacks.
package graph

// Node is a single resource in a stack's dependency graph.
type Node struct {
	// Name of the resource within its template
	Name string

	// DependsOn lists the resource names this node depends on. On creation
	// these run first; on deletion they run after this node.
	DependsOn []string

	// DependedOnBy lists the resource names that depend on this node.
	DependedOnBy []string
}

// NewNode creates a node for the named resource.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// AddDependency records a dependency on the named node if not already present.
func (n *Node) AddDependency(name string) {
	for _, dep := range n.DependsOn {
		if dep == name {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, name)
}

// AddDependent records a reverse edge to the named node if not already present.
func (n *Node) AddDependent(name string) {
	for _, dep := range n.DependedOnBy {
		if dep == name {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, name)
}
