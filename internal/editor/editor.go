// Package editor implements in-memory mutation and inspection operations
// over a parsed geodata region: cell inspect, cell edit, area unblock, and
// statistics.
package editor

import (
	"fmt"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/geodata"
)

// LayerView is one inspected layer of a cell, shaped for UI consumption.
type LayerView struct {
	Layer     int
	Height    int16
	NSWE      byte
	HexNSWE   string
	Direction string
	Walkable  bool
	Blocked   bool
}

// CellInspection is the result of inspecting a single (cx, cy).
type CellInspection struct {
	CellX     int
	CellY     int
	BlockType string
	Layers    []LayerView
}

func blockTypeName(b geodata.Block) string {
	switch b.(type) {
	case *geodata.FlatBlock:
		return "flat"
	case *geodata.ComplexBlock:
		return "complex"
	case *geodata.MultilayerBlock:
		return "multilayer"
	default:
		return "unknown"
	}
}

// DirectionString renders the set bits of an NSWE mask as a comma-joined
// list of compass directions ("BLOCKED" if none are set).
func DirectionString(nswe byte) string {
	var dirs []string
	if nswe&geodata.FlagNorth != 0 {
		dirs = append(dirs, "N")
	}
	if nswe&geodata.FlagSouth != 0 {
		dirs = append(dirs, "S")
	}
	if nswe&geodata.FlagEast != 0 {
		dirs = append(dirs, "E")
	}
	if nswe&geodata.FlagWest != 0 {
		dirs = append(dirs, "W")
	}
	if nswe&geodata.FlagNE != 0 {
		dirs = append(dirs, "NE")
	}
	if nswe&geodata.FlagNW != 0 {
		dirs = append(dirs, "NW")
	}
	if nswe&geodata.FlagSE != 0 {
		dirs = append(dirs, "SE")
	}
	if nswe&geodata.FlagSW != 0 {
		dirs = append(dirs, "SW")
	}
	if len(dirs) == 0 {
		return "BLOCKED"
	}
	joined := dirs[0]
	for _, d := range dirs[1:] {
		joined += "," + d
	}
	return joined
}

// InspectCell returns every layer at (cx, cy) in region, shaped for display.
func InspectCell(region *geodata.Region, cx, cy int) (*CellInspection, error) {
	if err := checkBounds(cx, cy); err != nil {
		return nil, err
	}

	bx, by := cx/geodata.BlockCellsX, cy/geodata.BlockCellsY
	block := region.GetBlock(bx, by)
	layers := region.GetLayers(cx, cy)

	views := make([]LayerView, len(layers))
	for i, c := range layers {
		views[i] = LayerView{
			Layer:     i,
			Height:    c.Height,
			NSWE:      c.NSWE,
			HexNSWE:   fmt.Sprintf("0x%02X", c.NSWE),
			Direction: DirectionString(c.NSWE),
			Walkable:  c.IsFullyWalkable(),
			Blocked:   c.IsBlocked(),
		}
	}

	return &CellInspection{
		CellX:     cx,
		CellY:     cy,
		BlockType: blockTypeName(block),
		Layers:    views,
	}, nil
}

// EditCell mutates one layer of one cell. A nil newHeight/newNSWE preserves
// the existing value. Editing a Flat block's individual cell is rejected —
// callers must upgrade it to Complex first; this package never does that
// upgrade silently (see DESIGN.md).
func EditCell(region *geodata.Region, cx, cy, layer int, newHeight *int16, newNSWE *byte) error {
	if err := checkBounds(cx, cy); err != nil {
		return err
	}

	bx, by := cx/geodata.BlockCellsX, cy/geodata.BlockCellsY
	lx, ly := cx%geodata.BlockCellsX, cy%geodata.BlockCellsY
	block := region.GetBlock(bx, by)

	switch b := block.(type) {
	case *geodata.FlatBlock:
		return apperrors.New(apperrors.KindConflict, "editor.edit_cell",
			"cannot edit a single cell of a flat block; upgrade to complex first").
			WithContext("cx", cx, "cy", cy)

	case *geodata.ComplexBlock:
		if layer != 0 {
			return apperrors.New(apperrors.KindFormat, "editor.edit_cell", "complex blocks have only layer 0").
				WithContext("layer", layer)
		}
		cur := b.GetCell(lx, ly, 0)
		applyEdit(&cur, newHeight, newNSWE)
		b.SetCell(lx, ly, cur)
		return nil

	case *geodata.MultilayerBlock:
		layers := b.GetLayers(lx, ly)
		if layer < 0 || layer >= len(layers) {
			return apperrors.New(apperrors.KindFormat, "editor.edit_cell", "layer index out of range").
				WithContext("layer", layer, "layer_count", len(layers))
		}
		cur := layers[layer]
		applyEdit(&cur, newHeight, newNSWE)
		b.SetCell(lx, ly, layer, cur)
		return nil

	default:
		return apperrors.New(apperrors.KindFormat, "editor.edit_cell", "unknown block variant")
	}
}

func applyEdit(c *geodata.Cell, newHeight *int16, newNSWE *byte) {
	if newHeight != nil {
		c.Height = *newHeight
	}
	if newNSWE != nil {
		c.NSWE = *newNSWE
	}
}

// MakeWalkable sets a single cell's layer-0 NSWE to fully open.
func MakeWalkable(region *geodata.Region, cx, cy int) error {
	nswe := byte(geodata.NSWEAll)
	return EditCell(region, cx, cy, 0, nil, &nswe)
}

// UnblockArea sweeps a square of radius around (cx, cy) (clamped to the
// region bounds) and opens every Complex/Multilayer cell whose cardinal
// mask isn't already full, preserving height. Flat blocks are already
// fully walkable and are skipped. Returns the number of cells modified.
func UnblockArea(region *geodata.Region, cx, cy, radius int) (int, error) {
	if err := checkBounds(cx, cy); err != nil {
		return 0, err
	}

	minX, maxX := clamp(cx-radius), clamp(cx+radius)
	minY, maxY := clamp(cy-radius), clamp(cy+radius)

	modified := 0
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			bx, by := x/geodata.BlockCellsX, y/geodata.BlockCellsY
			lx, ly := x%geodata.BlockCellsX, y%geodata.BlockCellsY
			block := region.GetBlock(bx, by)

			switch b := block.(type) {
			case *geodata.FlatBlock:
				continue

			case *geodata.ComplexBlock:
				cur := b.GetCell(lx, ly, 0)
				if cur.NSWE&geodata.NSWECardinal != geodata.NSWECardinal {
					cur.NSWE = geodata.NSWEAll
					b.SetCell(lx, ly, cur)
					modified++
				}

			case *geodata.MultilayerBlock:
				layers := b.GetLayers(lx, ly)
				for i, cur := range layers {
					if cur.NSWE&geodata.NSWECardinal != geodata.NSWECardinal {
						cur.NSWE = geodata.NSWEAll
						b.SetCell(lx, ly, i, cur)
						modified++
					}
				}
			}
		}
	}
	return modified, nil
}

// ComposeDiagonals derives the four diagonal bits from the cardinal bits
// already set (NE if N&E, NW if N&W, SE if S&E, SW if S&W). This is an
// editor-UI convenience, not something the codec itself ever does on save.
func ComposeDiagonals(nswe byte) byte {
	n := nswe&geodata.FlagNorth != 0
	s := nswe&geodata.FlagSouth != 0
	e := nswe&geodata.FlagEast != 0
	w := nswe&geodata.FlagWest != 0

	out := nswe
	if n && e {
		out |= geodata.FlagNE
	}
	if n && w {
		out |= geodata.FlagNW
	}
	if s && e {
		out |= geodata.FlagSE
	}
	if s && w {
		out |= geodata.FlagSW
	}
	return out
}

// Statistics re-exports the codec's own region statistics for editor callers.
func Statistics(region *geodata.Region) geodata.Stats {
	return region.ComputeStats()
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v >= geodata.RegionCellsX {
		return geodata.RegionCellsX - 1
	}
	return v
}

func checkBounds(cx, cy int) error {
	if cx < 0 || cx >= geodata.RegionCellsX || cy < 0 || cy >= geodata.RegionCellsY {
		return apperrors.New(apperrors.KindFormat, "editor.bounds", "cell coordinates out of range").
			WithContext("cx", cx, "cy", cy)
	}
	return nil
}
