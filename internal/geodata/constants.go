// Package geodata implements the L2D region codec: parsing, serializing,
// and random-accessing the binary terrain format, plus the coordinate math
// between world, region, and cell space.
package geodata

const (
	BlockCellsX = 8
	BlockCellsY = 8
	BlockCells  = BlockCellsX * BlockCellsY // 64

	RegionBlocksX = 256
	RegionBlocksY = 256
	RegionBlocks  = RegionBlocksX * RegionBlocksY // 65536

	RegionCellsX = RegionBlocksX * BlockCellsX // 2048
	RegionCellsY = RegionBlocksY * BlockCellsY // 2048
)

// Block type tags, as they appear on disk.
const (
	TypeFlat       byte = 0xD0
	TypeComplex    byte = 0xD1
	TypeMultilayer byte = 0xD2
)

// NSWE movement mask bits.
const (
	FlagEast = 1 << iota
	FlagWest
	FlagSouth
	FlagNorth
	FlagSE
	FlagSW
	FlagNE
	FlagNW
)

const (
	NSWECardinal = 0x0F
	NSWEAll      = 0xFF
)

// World-to-region coordinate origin offsets.
const (
	worldOriginX = -327680
	worldOriginY = -262144
	regionIndexX = 11
	regionIndexY = 10
	cellUnits    = 16
)
