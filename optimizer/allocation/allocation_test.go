package allocation

import (
	"math/rand"
	"testing"

	"github.com/mwhitby/talentbeam/talents"
)

// chainTree builds a 3-node chain a -> b -> c, each with one choice of max 1
// point, all in gate 0 with threshold 0.
func chainTree() *talents.Tree {
	gates := []talents.Gate{{ID: 0, PointsRequiredBelow: 0}}
	nodes := []*talents.Node{
		{ID: "a", Choices: []talents.Choice{{Name: "a", MaxPoints: 1}}, GateID: 0, ChildIDs: []string{"b"}, SortKey: "000100"},
		{ID: "b", Choices: []talents.Choice{{Name: "b", MaxPoints: 1}}, GateID: 0, ParentIDs: []string{"a"}, ChildIDs: []string{"c"}, SortKey: "000200"},
		{ID: "c", Choices: []talents.Choice{{Name: "c", MaxPoints: 1}}, GateID: 0, ParentIDs: []string{"b"}, SortKey: "000300"},
	}
	return talents.Build(talents.SpecDevourer, gates, nodes)
}

// gatedTree has two gate-0 nodes feeding one gate-1 node. Gate 1 requires 2
// points spent below it.
func gatedTree() *talents.Tree {
	gates := []talents.Gate{
		{ID: 0, PointsRequiredBelow: 0},
		{ID: 1, PointsRequiredBelow: 2},
	}
	nodes := []*talents.Node{
		{ID: "x", Choices: []talents.Choice{{Name: "x", MaxPoints: 2}}, GateID: 0, SortKey: "000100"},
		{ID: "y", Choices: []talents.Choice{{Name: "y", MaxPoints: 2}}, GateID: 0, SortKey: "000101"},
		{ID: "z", Choices: []talents.Choice{{Name: "z", MaxPoints: 1}}, GateID: 1, SortKey: "000200"},
	}
	return talents.Build(talents.SpecDevourer, gates, nodes)
}

func TestSeedMaxesEverything(t *testing.T) {
	a := Seed(chainTree(), 2, nil)
	if got := a.TotalSpent(); got != 3 {
		t.Fatalf("TotalSpent = %d, want 3", got)
	}
	if got := a.TalentString(); got != "a:1/b:1/c:1" {
		t.Fatalf("TalentString = %q, want %q", got, "a:1/b:1/c:1")
	}
	if got := a.GateSpent(0); got != 3 {
		t.Fatalf("GateSpent(0) = %d, want 3", got)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	tree := gatedTree()
	blocked := BlockList{{NodeID: "y", ChoiceIndex: 0}: true}
	a := Seed(tree, 5, blocked)
	b := Seed(tree, 5, blocked)
	if a.TalentString() != b.TalentString() {
		t.Fatalf("seeds differ: %q vs %q", a.TalentString(), b.TalentString())
	}
}

func TestSeedHonorsBlockList(t *testing.T) {
	blocked := BlockList{{NodeID: "b", ChoiceIndex: 0}: true}
	a := Seed(chainTree(), 2, blocked)
	if got := a.TalentString(); got != "a:1/c:1" {
		t.Fatalf("TalentString = %q, want %q", got, "a:1/c:1")
	}
	if got := a.TotalSpent(); got != 2 {
		t.Fatalf("TotalSpent = %d, want 2", got)
	}
}

func TestCanonicalStringOrderIndependent(t *testing.T) {
	// Two different removal orders reaching the same point set must produce
	// identical strings.
	tree := gatedTree()
	seed := Seed(tree, 3, nil)

	left := seed.RemovePoint("z", 0).RemovePoint("x", 0)
	right := seed.RemovePoint("x", 0).RemovePoint("z", 0)
	if left.TalentString() != right.TalentString() {
		t.Fatalf("order-dependent strings: %q vs %q", left.TalentString(), right.TalentString())
	}
}

func TestRemovePointDecrementsExactlyOne(t *testing.T) {
	tree := gatedTree()
	seed := Seed(tree, 3, nil)

	next := seed.RemovePoint("x", 0)
	if got, want := next.TotalSpent(), seed.TotalSpent()-1; got != want {
		t.Errorf("TotalSpent = %d, want %d", got, want)
	}
	if got, want := next.GateSpent(0), seed.GateSpent(0)-1; got != want {
		t.Errorf("GateSpent(0) = %d, want %d", got, want)
	}
	if got, want := next.GateSpent(1), seed.GateSpent(1); got != want {
		t.Errorf("GateSpent(1) = %d, changed from %d", got, want)
	}
	// The parent allocation is untouched.
	if got := seed.PointsSpent("x", 0); got != 2 {
		t.Errorf("parent mutated: PointsSpent(x) = %d, want 2", got)
	}
}

func TestCanRemoveDependencyPreservation(t *testing.T) {
	a := Seed(chainTree(), 2, nil)

	// c is a leaf; removing it strands nobody.
	if !a.CanRemove("c", 0) {
		t.Error("CanRemove(c) = false, want true")
	}
	// b's child c holds points and has no other parent.
	if a.CanRemove("b", 0) {
		t.Error("CanRemove(b) = true, want false")
	}
	// a's child b holds points and has no other parent.
	if a.CanRemove("a", 0) {
		t.Error("CanRemove(a) = true, want false")
	}

	// Once c is empty, b becomes removable but a still is not.
	b := a.RemovePoint("c", 0)
	if !b.CanRemove("b", 0) {
		t.Error("after removing c: CanRemove(b) = false, want true")
	}
	if b.CanRemove("a", 0) {
		t.Error("after removing c: CanRemove(a) = true, want false")
	}
}

func TestCanRemoveAlternativeParent(t *testing.T) {
	// d has two parents; as long as one of them keeps a fully skilled
	// choice, the other may be drained.
	gates := []talents.Gate{{ID: 0, PointsRequiredBelow: 0}}
	nodes := []*talents.Node{
		{ID: "p1", Choices: []talents.Choice{{Name: "pone", MaxPoints: 1}}, GateID: 0, ChildIDs: []string{"d"}, SortKey: "000100"},
		{ID: "p2", Choices: []talents.Choice{{Name: "ptwo", MaxPoints: 1}}, GateID: 0, ChildIDs: []string{"d"}, SortKey: "000101"},
		{ID: "d", Choices: []talents.Choice{{Name: "dep", MaxPoints: 1}}, GateID: 0, ParentIDs: []string{"p1", "p2"}, SortKey: "000200"},
	}
	tree := talents.Build(talents.SpecDevourer, gates, nodes)
	a := Seed(tree, 2, nil)

	if !a.CanRemove("p1", 0) {
		t.Error("CanRemove(p1) = false, want true while p2 is fully skilled")
	}

	// Drain p2: now p1 is d's only unlock path.
	b := a.RemovePoint("p2", 0)
	if b.CanRemove("p1", 0) {
		t.Error("CanRemove(p1) = true, want false with p2 empty")
	}
}

func TestGateSupportGuard(t *testing.T) {
	tree := gatedTree()
	a := Seed(tree, 5, nil) // x:2 y:2 z:1

	// Gate 1 needs 2 points below; removing from gate 0 down to exactly the
	// threshold must stop being legal while z holds points.
	b := a.RemovePoint("x", 0) // 3 points in gate 0
	if !b.CanRemove("x", 0) {
		t.Fatal("CanRemove(x) = false with 3 points in gate 0, want true")
	}
	c := b.RemovePoint("y", 0) // 2 points in gate 0, at the threshold
	if c.CanRemove("y", 0) {
		t.Error("CanRemove(y) = true at the gate threshold, want false")
	}
	if c.CanRemove("x", 0) {
		t.Error("CanRemove(x) = true at the gate threshold, want false")
	}
	// The gated node itself is still removable.
	if !c.CanRemove("z", 0) {
		t.Error("CanRemove(z) = false, want true")
	}
	// With z drained the guard still pins gate 0 at its literal boundary:
	// the scan rejects whenever a higher gate's threshold is not strictly
	// exceeded, whether or not that gate holds points.
	d := c.RemovePoint("z", 0)
	if d.CanRemove("y", 0) {
		t.Error("CanRemove(y) = true at the boundary after draining z, want false")
	}
}

func TestSingleChoiceViolationOverridesDependencies(t *testing.T) {
	// n offers two choices and feeds child m. Seeding maxes both choices,
	// putting n in violation; both removals must be legal even though m
	// depends on n.
	gates := []talents.Gate{{ID: 0, PointsRequiredBelow: 0}}
	nodes := []*talents.Node{
		{ID: "n", Choices: []talents.Choice{{Name: "left", MaxPoints: 1}, {Name: "right", MaxPoints: 1}}, GateID: 0, ChildIDs: []string{"m"}, SortKey: "000100"},
		{ID: "m", Choices: []talents.Choice{{Name: "mid", MaxPoints: 1}}, GateID: 0, ParentIDs: []string{"n"}, SortKey: "000200"},
	}
	tree := talents.Build(talents.SpecDevourer, gates, nodes)
	a := Seed(tree, 2, nil)

	if got := a.ViolatingNodeIDs(); len(got) != 1 || got[0] != "n" {
		t.Fatalf("ViolatingNodeIDs = %v, want [n]", got)
	}
	if !a.CanRemove("n", 0) || !a.CanRemove("n", 1) {
		t.Fatal("violating node must be removable on both choices")
	}

	// Resolving the violation restores dependency preservation.
	b := a.RemovePoint("n", 1)
	if len(b.ViolatingNodeIDs()) != 0 {
		t.Fatal("violation not resolved")
	}
	if b.CanRemove("n", 0) {
		t.Error("CanRemove(n,0) = true after resolution, want false while m holds points")
	}
}

func TestGateSupportPinsViolatingNode(t *testing.T) {
	// v holds points in both choices, so it violates the single-choice rule.
	// The violation override only waives dependency preservation; when every
	// removal from v is rejected by the gate scan, the violation cannot be
	// resolved until the higher gate is drained first.
	gates := []talents.Gate{
		{ID: 0, PointsRequiredBelow: 0},
		{ID: 1, PointsRequiredBelow: 2},
	}
	nodes := []*talents.Node{
		{ID: "v", Choices: []talents.Choice{{Name: "vone", MaxPoints: 1}, {Name: "vtwo", MaxPoints: 1}}, GateID: 0, SortKey: "000100"},
		{ID: "z", Choices: []talents.Choice{{Name: "z", MaxPoints: 1}}, GateID: 1, SortKey: "000200"},
	}
	tree := talents.Build(talents.SpecDevourer, gates, nodes)
	a := Seed(tree, 1, nil) // v:1+1 = 2 points in gate 0, exactly gate 1's threshold

	if got := a.ViolatingNodeIDs(); len(got) != 1 || got[0] != "v" {
		t.Fatalf("ViolatingNodeIDs = %v, want [v]", got)
	}
	if a.CanRemove("v", 0) || a.CanRemove("v", 1) {
		t.Error("CanRemove(v) = true, want false while gate 0 sits at gate 1's threshold")
	}
	// The only legal removal is the gated node itself.
	removals := a.CandidateRemovals(rand.New(rand.NewSource(1)))
	if len(removals) != 1 || removals[0].NodeID != "z" {
		t.Fatalf("CandidateRemovals = %v, want only z", removals)
	}
}

func TestCandidateRemovalsPrioritizesViolations(t *testing.T) {
	gates := []talents.Gate{{ID: 0, PointsRequiredBelow: 0}}
	nodes := []*talents.Node{
		{ID: "v", Choices: []talents.Choice{{Name: "vone", MaxPoints: 1}, {Name: "vtwo", MaxPoints: 1}}, GateID: 0, SortKey: "000100"},
		{ID: "w", Choices: []talents.Choice{{Name: "w", MaxPoints: 1}}, GateID: 0, SortKey: "000101"},
	}
	tree := talents.Build(talents.SpecDevourer, gates, nodes)
	a := Seed(tree, 1, nil)

	rng := rand.New(rand.NewSource(1))
	removals := a.CandidateRemovals(rng)
	if len(removals) != 3 {
		t.Fatalf("got %d removals, want 3", len(removals))
	}
	if removals[0].NodeID != "v" || removals[1].NodeID != "v" {
		t.Errorf("violating node not prioritized: %v", removals)
	}
}

func TestCandidateRemovalsDeterministicWithSeed(t *testing.T) {
	tree := gatedTree()
	a := Seed(tree, 5, nil)

	first := a.CandidateRemovals(rand.New(rand.NewSource(42)))
	second := a.CandidateRemovals(rand.New(rand.NewSource(42)))
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order differs at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestUnknownNodePanics(t *testing.T) {
	a := Seed(chainTree(), 2, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown node id")
		}
	}()
	a.CanRemove("nope", 0)
}

func TestOutOfRangeChoicePanics(t *testing.T) {
	a := Seed(chainTree(), 2, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range choice index")
		}
	}()
	a.CanRemove("a", 5)
}
