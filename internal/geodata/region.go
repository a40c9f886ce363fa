package geodata

import (
	"strconv"
	"strings"

	"github.com/la2geo/geoharvest/internal/apperrors"
)

// Region is a 2048x2048 cell grid: 256x256 blocks of 8x8 cells, named by
// (RegionX, RegionY) and persisted as "<rx>_<ry>.l2d".
type Region struct {
	RegionX int
	RegionY int
	Blocks  []Block // len == RegionBlocks, row-major bx*RegionBlocksY+by
}

// Stats summarizes a region's block composition and terrain extremes.
type Stats struct {
	Region            string
	FlatBlocks        int
	ComplexBlocks     int
	MultilayerBlocks  int
	TotalBlocks       int
	HeightMin         int16
	HeightMax         int16
	FullyBlockedCells int
	PartialCells      int
	MaxLayerDepth     int
}

// ParseRegionName extracts (rx, ry) from a region file stem such as
// "22_16". Malformed or missing names default to (0, 0).
func ParseRegionName(name string) (int, int) {
	parts := strings.Split(name, "_")
	if len(parts) != 2 {
		return 0, 0
	}
	rx, err1 := strconv.Atoi(parts[0])
	ry, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return rx, ry
}

// Parse decodes an entire L2D file. name is the region's file stem (used
// only to recover rx/ry); data is the full file contents.
func Parse(name string, data []byte) (*Region, error) {
	rx, ry := ParseRegionName(name)

	blocks := make([]Block, 0, RegionBlocks)
	pos := 0
	for i := range RegionBlocks {
		block, next, err := decodeBlock(data, pos)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindFormat, "geodata.parse", err).
				WithContext("region", name, "block_index", i)
		}
		blocks = append(blocks, block)
		pos = next
	}
	if pos != len(data) {
		return nil, apperrors.New(apperrors.KindFormat, "geodata.parse", "trailing bytes after last block").
			WithContext("region", name, "consumed", pos, "total", len(data))
	}

	return &Region{RegionX: rx, RegionY: ry, Blocks: blocks}, nil
}

// Write serializes the region back to its on-disk byte layout, bit-exact
// with what Parse would read back.
func (r *Region) Write() []byte {
	buf := make([]byte, 0, RegionBlocks*3)
	for _, block := range r.Blocks {
		buf = encodeBlock(buf, block)
	}
	return buf
}

// GetBlock returns the block at block coordinates (bx, by).
func (r *Region) GetBlock(bx, by int) Block {
	return r.Blocks[bx*RegionBlocksY+by]
}

// GetCell returns the cell at region cell coordinates (cx, cy) and layer
// (0 for the canonical surface).
func (r *Region) GetCell(cx, cy, layer int) Cell {
	bx, by := cx/BlockCellsX, cy/BlockCellsY
	lx, ly := cx%BlockCellsX, cy%BlockCellsY
	return r.GetBlock(bx, by).GetCell(lx, ly, layer)
}

// GetLayers returns every layer stacked at region cell coordinates (cx, cy),
// always at least one.
func (r *Region) GetLayers(cx, cy int) []Cell {
	bx, by := cx/BlockCellsX, cy/BlockCellsY
	lx, ly := cx%BlockCellsX, cy%BlockCellsY
	return r.GetBlock(bx, by).GetLayers(lx, ly)
}

func (r *Region) GetHeight(cx, cy int) int16 { return r.GetCell(cx, cy, 0).Height }
func (r *Region) GetNSWE(cx, cy int) byte    { return r.GetCell(cx, cy, 0).NSWE }

// ComputeStats walks every block and cell to summarize the region.
func (r *Region) ComputeStats() Stats {
	s := Stats{
		Region:      strconv.Itoa(r.RegionX) + "_" + strconv.Itoa(r.RegionY),
		TotalBlocks: len(r.Blocks),
	}

	first := true
	for _, block := range r.Blocks {
		switch b := block.(type) {
		case *FlatBlock:
			s.FlatBlocks++
			updateHeightRange(&s, &first, b.Height)
			// A Flat block's 64 cells are all fully walkable.
			s.MaxLayerDepth = max(s.MaxLayerDepth, 1)

		case *ComplexBlock:
			s.ComplexBlocks++
			s.MaxLayerDepth = max(s.MaxLayerDepth, 1)
			for _, c := range b.Cells {
				updateHeightRange(&s, &first, c.Height)
				tallyCell(&s, c)
			}

		case *MultilayerBlock:
			s.MultilayerBlocks++
			for _, layers := range b.CellLayers {
				s.MaxLayerDepth = max(s.MaxLayerDepth, len(layers))
				for _, c := range layers {
					updateHeightRange(&s, &first, c.Height)
				}
				tallyCell(&s, layers[0])
			}
		}
	}
	return s
}

func updateHeightRange(s *Stats, first *bool, h int16) {
	if *first {
		s.HeightMin, s.HeightMax = h, h
		*first = false
		return
	}
	if h < s.HeightMin {
		s.HeightMin = h
	}
	if h > s.HeightMax {
		s.HeightMax = h
	}
}

func tallyCell(s *Stats, c Cell) {
	switch {
	case c.IsBlocked():
		s.FullyBlockedCells++
	case !c.IsFullyWalkable():
		s.PartialCells++
	}
}
