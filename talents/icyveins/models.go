// Package icyveins parses Icy Veins talent calculator data and converts it
// into the canonical tree template the optimizer searches over.
package icyveins

// Spell is one rankable talent inside a node.
type Spell struct {
	SpellID  int    `json:"spellId"`
	Name     string `json:"name"`
	MaxRanks int    `json:"maxRanks"`
}

// SpecNode is a node in the calculator grid. PreviousNodeIDs are the parents
// that unlock it.
type SpecNode struct {
	ID              int     `json:"id"`
	PreviousNodeIDs []int   `json:"previousNodeIds"`
	Row             int     `json:"row"`
	Column          int     `json:"column"`
	Spells          []Spell `json:"spells"`
}

// RowCheckpoint is a point gate: rows at or below Row require Points spent
// above before they unlock.
type RowCheckpoint struct {
	Row    int `json:"row"`
	Points int `json:"points"`
}

// Spec is one specialization's tree as published by Icy Veins.
type Spec struct {
	ID              int                 `json:"id"`
	Name            string              `json:"name"`
	SpecNodes       map[string]SpecNode `json:"specNodes"`
	SpecCheckpoints []RowCheckpoint     `json:"specCheckpoints"`
}

// Class is the top-level document: all specs for one class.
type Class struct {
	Name  string          `json:"name"`
	Specs map[string]Spec `json:"specs"`
}
