package graph

// Graph is an arena of nodes keyed by string ID (spec.md 9: "arena-of-nodes
// vs references" — edges are always ID strings, never pointers). Insertion
// order is tracked separately so that tick-to-tick iteration is deterministic
// (spec.md 5, ordering guarantee (a)) even though Go maps are not.
type Graph struct {
	nodes HashMap
	order []string
}

// HashMap is the underlying node index; a named type keeps call sites legible.
type HashMap = map[string]*Node

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(HashMap)}
}

// AddNode inserts or replaces the node by ID. A replacement keeps its
// original position in iteration order.
func (g *Graph) AddNode(n *Node) {
	id := n.ID()
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = n
}

// RemoveNode deletes a node by ID, returning it if present.
func (g *Graph) RemoveNode(id string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	delete(g.nodes, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return n
}

// GetNode returns the node with the given ID, if any.
func (g *Graph) GetNode(id string) *Node { return g.nodes[id] }

// GetTask returns the task with the given ID, nil if absent or not a task.
func (g *Graph) GetTask(id string) *Task {
	n, ok := g.nodes[id]
	if !ok || n.Kind != NodeKindTask {
		return nil
	}
	return n.Task
}

// GetResource returns the resource with the given ID, nil if absent or not a
// resource.
func (g *Graph) GetResource(id string) *Resource {
	n, ok := g.nodes[id]
	if !ok || n.Kind != NodeKindResource {
		return nil
	}
	return n.Resource
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.nodes) }

// IsEmpty reports whether the graph has no nodes.
func (g *Graph) IsEmpty() bool { return len(g.nodes) == 0 }

// Nodes returns all nodes in deterministic insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Tasks returns all task nodes in deterministic insertion order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == NodeKindTask {
			out = append(out, n.Task)
		}
	}
	return out
}

// Resources returns all resource nodes in deterministic insertion order.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, 0)
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == NodeKindResource {
			out = append(out, n.Resource)
		}
	}
	return out
}
