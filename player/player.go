// Package player holds the character identity fed to the simulator and the
// level-based talent point budget.
package player

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLevel is returned for levels with no known point budget.
var ErrUnsupportedLevel = errors.New("player: unsupported level")

// Player identifies the simulated character.
type Player struct {
	Name  string
	Level int
	Race  string
}

// SpecTalentPoints returns the number of spec tree points available at the
// player's level.
func (p Player) SpecTalentPoints() (int, error) {
	switch p.Level {
	case 80:
		return 30, nil
	case 90:
		return 34, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedLevel, p.Level)
}
