package geodata

// Cell is the atomic 16x16 world-unit terrain tile: a signed height and an
// 8-bit movement mask (cardinals in the low nibble, diagonals in the high
// nibble).
type Cell struct {
	Height int16
	NSWE   byte
}

func (c Cell) CanMoveNorth() bool { return c.NSWE&FlagNorth != 0 }
func (c Cell) CanMoveSouth() bool { return c.NSWE&FlagSouth != 0 }
func (c Cell) CanMoveEast() bool  { return c.NSWE&FlagEast != 0 }
func (c Cell) CanMoveWest() bool  { return c.NSWE&FlagWest != 0 }

// IsFullyWalkable reports whether all four cardinal directions are open.
func (c Cell) IsFullyWalkable() bool { return c.NSWE&NSWECardinal == NSWECardinal }

// IsBlocked reports whether no cardinal direction is open.
func (c Cell) IsBlocked() bool { return c.NSWE&NSWECardinal == 0 }
