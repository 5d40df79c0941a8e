// Package talents holds the immutable talent tree template shared by all
// search candidates. Nodes reference each other by id rather than by pointer,
// so candidates only ever copy their own point vectors, never the structure.
package talents

import "sort"

// Specialization identifies which spec tree a template describes.
type Specialization string

const (
	SpecHavoc     Specialization = "havoc"
	SpecVengeance Specialization = "vengeance"
	SpecDevourer  Specialization = "devourer"
)

// Choice is one selectable talent within a node.
type Choice struct {
	Name      string
	MaxPoints int
}

// Node is a single talent node. ParentIDs/ChildIDs form a DAG, not a strict
// tree: a node may have multiple parents and multiple children.
type Node struct {
	ID        string
	Choices   []Choice
	GateID    int
	ParentIDs []string
	ChildIDs  []string

	// SortKey orders nodes in the canonical talent string. Keys must compare
	// consistently as strings, so numeric keys need zero padding.
	SortKey string
}

// Gate is a tier boundary. Nodes with this gate id may only hold points once
// PointsRequiredBelow points are committed to nodes in lower gates.
type Gate struct {
	ID                  int
	PointsRequiredBelow int
}

// Tree is the template for one spec tree. It is read-only after Build and safe
// to share across goroutines.
type Tree struct {
	Spec  Specialization
	gates []Gate
	nodes map[string]*Node

	// sortedIDs caches node ids in SortKey order for canonical serialization.
	sortedIDs []string
}

// Build assembles a Tree from gates and nodes. Structural guarantees
// (acyclicity, valid gate references, unique ids) are the converter's job;
// Build only indexes what it is given.
func Build(spec Specialization, gates []Gate, nodes []*Node) *Tree {
	t := &Tree{
		Spec:  spec,
		gates: make([]Gate, len(gates)),
		nodes: make(map[string]*Node, len(nodes)),
	}
	copy(t.gates, gates)
	sort.Slice(t.gates, func(i, j int) bool { return t.gates[i].ID < t.gates[j].ID })

	for _, n := range nodes {
		t.nodes[n.ID] = n
		t.sortedIDs = append(t.sortedIDs, n.ID)
	}
	sort.Slice(t.sortedIDs, func(i, j int) bool {
		return t.nodes[t.sortedIDs[i]].SortKey < t.nodes[t.sortedIDs[j]].SortKey
	})
	return t
}

// Node returns the node with the given id and whether it exists.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Gates returns the gates in ascending id order. Callers must not mutate the
// returned slice.
func (t *Tree) Gates() []Gate {
	return t.gates
}

// NodeIDs returns all node ids in template order (unspecified).
func (t *Tree) NodeIDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	return ids
}

// SortedNodeIDs returns node ids ordered by SortKey, the order used for
// canonical talent strings.
func (t *Tree) SortedNodeIDs() []string {
	return t.sortedIDs
}

// NumNodes returns the number of nodes in the template.
func (t *Tree) NumNodes() int {
	return len(t.nodes)
}
