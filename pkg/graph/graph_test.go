package graph

import (
	"strings"
	"testing"

	"github.com/kiln-io/kiln/pkg/errors"
)

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph()

	err := g.AddNode(NewNode("db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(g.Nodes) != 1 {
		t.Errorf("expected 1 node, got %d", len(g.Nodes))
	}

	// Adding duplicate should fail
	err = g.AddNode(NewNode("db"))
	if err == nil {
		t.Error("expected error for duplicate node")
	}
}

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph()
	_ = g.AddNode(NewNode("db"))
	_ = g.AddNode(NewNode("server"))

	// server depends on db
	if err := g.AddEdge("server", "db"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := g.GetNode("server")
	if len(server.DependsOn) != 1 || server.DependsOn[0] != "db" {
		t.Errorf("expected server to depend on db, got %v", server.DependsOn)
	}

	db := g.GetNode("db")
	if len(db.DependedOnBy) != 1 || db.DependedOnBy[0] != "server" {
		t.Errorf("expected db depended on by server, got %v", db.DependedOnBy)
	}

	// Duplicate edges collapse
	_ = g.AddEdge("server", "db")
	if len(server.DependsOn) != 1 {
		t.Errorf("expected deduplicated edge, got %v", server.DependsOn)
	}

	if err := g.AddEdge("server", "missing"); err == nil {
		t.Error("expected error for edge to unknown node")
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	g := NewGraph()
	for _, name := range []string{"volume", "server", "db", "floating_ip"} {
		_ = g.AddNode(NewNode(name))
	}
	_ = g.AddEdge("server", "db")
	_ = g.AddEdge("server", "volume")
	_ = g.AddEdge("floating_ip", "server")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	position := make(map[string]int)
	for i, node := range sorted {
		position[node.Name] = i
	}

	if position["db"] > position["server"] || position["volume"] > position["server"] {
		t.Errorf("dependencies must sort before server: %v", names(sorted))
	}
	if position["server"] > position["floating_ip"] {
		t.Errorf("server must sort before floating_ip: %v", names(sorted))
	}
}

func TestGraph_TopologicalSortDeterministic(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		for _, name := range []string{"c", "a", "b", "d"} {
			_ = g.AddNode(NewNode(name))
		}
		_ = g.AddEdge("d", "b")
		return g
	}

	first, err := build().TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := build().TopologicalSort()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(names(again), ",") != strings.Join(names(first), ",") {
			t.Fatalf("order changed between runs: %v vs %v", names(first), names(again))
		}
	}

	// Unconstrained nodes come out in name order
	if got := strings.Join(names(first), ","); got != "a,b,c,d" {
		t.Errorf("expected name-ordered result, got %s", got)
	}
}

func TestGraph_ReverseTopologicalSort(t *testing.T) {
	g := NewGraph()
	_ = g.AddNode(NewNode("db"))
	_ = g.AddNode(NewNode("server"))
	_ = g.AddEdge("server", "db")

	sorted, err := g.ReverseTopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sorted[0].Name != "server" || sorted[1].Name != "db" {
		t.Errorf("expected server before db on reverse sort, got %v", names(sorted))
	}
}

func TestGraph_CycleDetection(t *testing.T) {
	g := NewGraph()
	for _, name := range []string{"a", "b", "c", "standalone"} {
		_ = g.AddNode(NewNode(name))
	}
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")
	_ = g.AddEdge("c", "a")

	_, err := g.TopologicalSort()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, errors.ErrCodeCircular) {
		t.Errorf("expected CIRCULAR_DEPENDENCY, got %v", err)
	}

	// The error names the cycle members, not the innocent node
	msg := err.Error()
	for _, member := range []string{"a", "b", "c"} {
		if !strings.Contains(msg, member) {
			t.Errorf("cycle error should name %q: %s", member, msg)
		}
	}
	if strings.Contains(msg, "standalone") {
		t.Errorf("cycle error should not name standalone: %s", msg)
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
