package icyveins

import (
	"fmt"
	"sort"
	"strconv"
	"unicode"

	"github.com/mwhitby/talentbeam/talents"
)

// specializationForID maps Icy Veins spec ids to our specializations.
func specializationForID(id int) (talents.Specialization, error) {
	switch id {
	case 577:
		return talents.SpecHavoc, nil
	case 581:
		return talents.SpecVengeance, nil
	case 1480:
		return talents.SpecDevourer, nil
	}
	return "", fmt.Errorf("icyveins: spec id %d not recognized", id)
}

// convertCheckpoints builds the gate list: gate 0 is the unconstrained base
// tier, then one gate per checkpoint in ascending row order.
func convertCheckpoints(checkpoints []RowCheckpoint) []talents.Gate {
	gates := []talents.Gate{{ID: 0, PointsRequiredBelow: 0}}
	sorted := make([]RowCheckpoint, len(checkpoints))
	copy(sorted, checkpoints)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })
	for _, cp := range sorted {
		gates = append(gates, talents.Gate{ID: len(gates), PointsRequiredBelow: cp.Points})
	}
	return gates
}

// sanitizeTalentName turns a display name into the canonical token used in
// talent strings: ascii letters lowercased, whitespace as underscores,
// everything else dropped.
func sanitizeTalentName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, unicode.ToLower(r))
		case unicode.IsSpace(r):
			out = append(out, '_')
		}
	}
	return string(out)
}

// rowGateMapper assigns rows to gates based on checkpoint cutoffs. Rows below
// the first checkpoint row are gate 0, and so on upward.
type rowGateMapper struct {
	cutoffs   [][2]int // (row, gate id)
	maxGateID int
}

func newRowGateMapper(checkpoints []RowCheckpoint) *rowGateMapper {
	m := &rowGateMapper{}
	sorted := make([]RowCheckpoint, len(checkpoints))
	copy(sorted, checkpoints)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })
	for _, cp := range sorted {
		gateID := len(m.cutoffs) + 1
		m.cutoffs = append(m.cutoffs, [2]int{cp.Row, gateID})
		m.maxGateID = gateID
	}
	return m
}

func (m *rowGateMapper) gateFor(row int) int {
	for _, cutoff := range m.cutoffs {
		if row < cutoff[0] {
			return cutoff[1] - 1
		}
	}
	return m.maxGateID
}

func nodeID(ivNodeID int) string {
	return strconv.Itoa(ivNodeID)
}

// sortKey orders nodes by grid position. Zero padded so string comparison
// matches numeric order.
func sortKey(row, column int) string {
	return fmt.Sprintf("%06d", row*100+column)
}

// Convert translates an Icy Veins spec into the canonical tree template. It
// guarantees the adjacency lists are mirrored (every parent edge has the
// matching child edge) and gate ids ascend with row.
func Convert(spec Spec) (*talents.Tree, error) {
	specialization, err := specializationForID(spec.ID)
	if err != nil {
		return nil, err
	}

	mapper := newRowGateMapper(spec.SpecCheckpoints)
	byID := make(map[string]*talents.Node, len(spec.SpecNodes))
	for _, ivNode := range spec.SpecNodes {
		choices := make([]talents.Choice, 0, len(ivNode.Spells))
		for _, spell := range ivNode.Spells {
			choices = append(choices, talents.Choice{
				Name:      sanitizeTalentName(spell.Name),
				MaxPoints: spell.MaxRanks,
			})
		}
		id := nodeID(ivNode.ID)
		byID[id] = &talents.Node{
			ID:      id,
			Choices: choices,
			GateID:  mapper.gateFor(ivNode.Row),
			SortKey: sortKey(ivNode.Row, ivNode.Column),
		}
	}

	for _, ivChild := range spec.SpecNodes {
		childID := nodeID(ivChild.ID)
		child := byID[childID]
		for _, ivParentID := range ivChild.PreviousNodeIDs {
			parentID := nodeID(ivParentID)
			parent, ok := byID[parentID]
			if !ok {
				return nil, fmt.Errorf("icyveins: node %s references unknown parent %s", childID, parentID)
			}
			parent.ChildIDs = append(parent.ChildIDs, childID)
			child.ParentIDs = append(child.ParentIDs, parentID)
		}
	}

	nodes := make([]*talents.Node, 0, len(byID))
	for _, n := range byID {
		nodes = append(nodes, n)
	}
	return talents.Build(specialization, convertCheckpoints(spec.SpecCheckpoints), nodes), nil
}
