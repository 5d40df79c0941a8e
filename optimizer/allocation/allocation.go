// Package allocation tracks the points a candidate build has committed to
// each talent node, and decides which single-point removals are legal.
//
// An Allocation is a value in the search: once produced it is never mutated,
// new states are derived via RemovePoint which copies first. The tree
// template itself is shared and read-only.
package allocation

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/mwhitby/talentbeam/talents"
)

// NodeChoice identifies one choice within one node.
type NodeChoice struct {
	NodeID      string
	ChoiceIndex int
}

// BlockList is the set of choices that must never receive points during
// seeding. It models "I explicitly don't want this talent".
type BlockList map[NodeChoice]bool

// StringProvider produces a talent string. Both live Allocations and fixed
// literal strings (locked trees) satisfy it.
type StringProvider interface {
	TalentString() string
}

// Fixed is a StringProvider backed by a literal talent string, used for
// locked trees that are not under optimization.
type Fixed string

func (f Fixed) TalentString() string { return string(f) }

// Allocation is one candidate's point assignment over a shared tree template.
type Allocation struct {
	tree   *talents.Tree
	budget int

	// points holds spent points per node, indexed by choice.
	points map[string][]int

	// gateSpent is the derived total of points committed per gate id, kept
	// consistent with points on every mutation.
	gateSpent map[int]int

	totalSpent int
}

// Seed builds a maximally skilled Allocation: every choice of every node set
// to its capacity, except choices on the block list which stay at zero.
func Seed(tree *talents.Tree, budget int, blocked BlockList) *Allocation {
	a := &Allocation{
		tree:      tree,
		budget:    budget,
		points:    make(map[string][]int, tree.NumNodes()),
		gateSpent: make(map[int]int),
	}
	for _, id := range tree.SortedNodeIDs() {
		node, _ := tree.Node(id)
		spent := make([]int, len(node.Choices))
		for i, choice := range node.Choices {
			if blocked[NodeChoice{NodeID: id, ChoiceIndex: i}] {
				continue
			}
			spent[i] = choice.MaxPoints
			a.gateSpent[node.GateID] += choice.MaxPoints
			a.totalSpent += choice.MaxPoints
		}
		a.points[id] = spent
	}
	return a
}

// Copy deep-copies the per-node point state. The template is shared.
func (a *Allocation) Copy() *Allocation {
	clone := &Allocation{
		tree:       a.tree,
		budget:     a.budget,
		points:     make(map[string][]int, len(a.points)),
		gateSpent:  make(map[int]int, len(a.gateSpent)),
		totalSpent: a.totalSpent,
	}
	for id, spent := range a.points {
		cp := make([]int, len(spent))
		copy(cp, spent)
		clone.points[id] = cp
	}
	for gate, n := range a.gateSpent {
		clone.gateSpent[gate] = n
	}
	return clone
}

// TotalSpent returns the total points committed across all nodes.
func (a *Allocation) TotalSpent() int { return a.totalSpent }

// Budget returns the configured maximum the player may ultimately spend.
// Allocations may exceed it transiently during the search.
func (a *Allocation) Budget() int { return a.budget }

// GateSpent returns the points currently committed to nodes of the given gate.
func (a *Allocation) GateSpent(gateID int) int { return a.gateSpent[gateID] }

// PointsSpent returns the points committed to one choice of one node.
func (a *Allocation) PointsSpent(nodeID string, choiceIndex int) int {
	return a.mustPoints(nodeID)[choiceIndex]
}

// TalentString serializes the allocation canonically: nodes in SortKey order,
// nodes with no points omitted, each node's nonzero choices as name:points
// joined by "/". The result is the dedup key for the whole search.
func (a *Allocation) TalentString() string {
	var b strings.Builder
	for _, id := range a.tree.SortedNodeIDs() {
		node, _ := a.tree.Node(id)
		for i, spent := range a.points[id] {
			if spent == 0 {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('/')
			}
			b.WriteString(node.Choices[i].Name)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(spent))
		}
	}
	return b.String()
}

func (a *Allocation) String() string { return a.TalentString() }

// RemovePoint returns a new Allocation with exactly one point removed from
// the given choice, and that node's gate total decremented by one. It does
// not re-check legality; callers must have consulted CanRemove first.
func (a *Allocation) RemovePoint(nodeID string, choiceIndex int) *Allocation {
	clone := a.Copy()
	spent := clone.mustPoints(nodeID)
	if spent[choiceIndex] <= 0 {
		panic(fmt.Sprintf("allocation: no points to remove from node %s choice %d", nodeID, choiceIndex))
	}
	spent[choiceIndex]--
	node, _ := clone.tree.Node(nodeID)
	clone.gateSpent[node.GateID]--
	clone.totalSpent--
	return clone
}

// CanRemove reports whether removing one point from the given choice is
// currently legal. It never errors for ordinary "not legal" answers; an
// unknown node id or out-of-range choice index is a programmer error and
// panics.
func (a *Allocation) CanRemove(nodeID string, choiceIndex int) bool {
	node, ok := a.tree.Node(nodeID)
	if !ok {
		panic(fmt.Sprintf("allocation: unknown node id %q", nodeID))
	}
	spent := a.points[nodeID]
	if choiceIndex < 0 || choiceIndex >= len(spent) {
		panic(fmt.Sprintf("allocation: choice index %d out of range for node %s", choiceIndex, nodeID))
	}
	if spent[choiceIndex] <= 0 {
		return false
	}

	// A node holding points in more than one choice violates the
	// single-choice rule. Removals that resolve the violation are exempt
	// from dependency preservation below.
	violating := a.violatesSingleChoice(nodeID)

	// Dependency preservation: removing from this node must not strand a
	// child that holds points, unless some other parent of that child still
	// has a fully skilled choice as an alternative unlock path.
	for _, childID := range node.ChildIDs {
		if !a.holdsPoints(childID) {
			continue
		}
		child, _ := a.tree.Node(childID)
		hasValidParent := false
		for _, parentID := range child.ParentIDs {
			if parentID == nodeID {
				continue
			}
			if a.hasFullySkilledChoice(parentID) {
				hasValidParent = true
				break
			}
		}
		if !hasValidParent && !violating {
			return false
		}
	}

	// Gate support: scan gates in ascending id order, accumulating the
	// points held below each gate. A removal is illegal if any higher gate's
	// threshold is not strictly exceeded by the points accumulated below it.
	// The gate's own points join the running total after its check.
	runningTotal := 0
	for _, gate := range a.tree.Gates() {
		if gate.ID > node.GateID && gate.PointsRequiredBelow >= runningTotal {
			return false
		}
		runningTotal += a.gateSpent[gate.ID]
	}
	return true
}

// CandidateRemovals returns every (node, choice) pair whose single-point
// removal is currently legal. Nodes violating the single-choice rule come
// first so invalid states get resolved before budget-driven exploration;
// everything else is shuffled through rng to diversify the search.
func (a *Allocation) CandidateRemovals(rng *rand.Rand) []NodeChoice {
	violating := a.violatingNodeIDs()
	isViolating := make(map[string]bool, len(violating))
	for _, id := range violating {
		isViolating[id] = true
	}

	shuffled := make([]string, 0, a.tree.NumNodes())
	for _, id := range a.tree.SortedNodeIDs() {
		if !isViolating[id] {
			shuffled = append(shuffled, id)
		}
	}
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	ordered := append(violating, shuffled...)

	var candidates []NodeChoice
	for _, nodeID := range ordered {
		indices := a.choiceIndicesWithPoints(nodeID)
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		for _, ci := range indices {
			if a.CanRemove(nodeID, ci) {
				candidates = append(candidates, NodeChoice{NodeID: nodeID, ChoiceIndex: ci})
			}
		}
	}
	return candidates
}

// ViolatingNodeIDs returns the ids of nodes currently holding points in more
// than one choice, in canonical order.
func (a *Allocation) ViolatingNodeIDs() []string {
	return a.violatingNodeIDs()
}

func (a *Allocation) violatingNodeIDs() []string {
	var ids []string
	for _, id := range a.tree.SortedNodeIDs() {
		if a.violatesSingleChoice(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (a *Allocation) violatesSingleChoice(nodeID string) bool {
	skilled := 0
	for _, spent := range a.points[nodeID] {
		if spent > 0 {
			skilled++
		}
	}
	return skilled > 1
}

func (a *Allocation) holdsPoints(nodeID string) bool {
	for _, spent := range a.points[nodeID] {
		if spent > 0 {
			return true
		}
	}
	return false
}

func (a *Allocation) hasFullySkilledChoice(nodeID string) bool {
	node, _ := a.tree.Node(nodeID)
	for i, spent := range a.points[nodeID] {
		if spent > 0 && spent == node.Choices[i].MaxPoints {
			return true
		}
	}
	return false
}

func (a *Allocation) choiceIndicesWithPoints(nodeID string) []int {
	var indices []int
	for i, spent := range a.points[nodeID] {
		if spent > 0 {
			indices = append(indices, i)
		}
	}
	return indices
}

func (a *Allocation) mustPoints(nodeID string) []int {
	spent, ok := a.points[nodeID]
	if !ok {
		panic(fmt.Sprintf("allocation: unknown node id %q", nodeID))
	}
	return spent
}
