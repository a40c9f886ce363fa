package geodata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSyntheticRegion() *Region {
	blocks := make([]Block, RegionBlocks)
	for i := range blocks {
		switch i % 3 {
		case 0:
			blocks[i] = &FlatBlock{Height: int16(i % 100)}
		case 1:
			var cells [BlockCells]Cell
			for c := range cells {
				cells[c] = Cell{Height: int16(c), NSWE: byte(c % 256)}
			}
			blocks[i] = &ComplexBlock{Cells: cells}
		default:
			var layers [BlockCells][]Cell
			for c := range layers {
				layers[c] = []Cell{
					{Height: int16(c), NSWE: NSWEAll},
					{Height: int16(c + 1000), NSWE: NSWECardinal},
				}
			}
			blocks[i] = &MultilayerBlock{CellLayers: layers}
		}
	}
	return &Region{RegionX: 22, RegionY: 16, Blocks: blocks}
}

func TestParseWriteRoundTrip(t *testing.T) {
	region := buildSyntheticRegion()
	data := region.Write()

	parsed, err := Parse("22_16", data)
	require.NoError(t, err)
	assert.Equal(t, 22, parsed.RegionX)
	assert.Equal(t, 16, parsed.RegionY)
	assert.Equal(t, region.Blocks, parsed.Blocks)

	// Second round-trip must produce byte-identical output.
	assert.Equal(t, data, parsed.Write())
}

func TestParseRegionNameMalformedDefaultsToZero(t *testing.T) {
	rx, ry := ParseRegionName("not-a-region-name")
	assert.Equal(t, 0, rx)
	assert.Equal(t, 0, ry)

	rx, ry = ParseRegionName("22_16")
	assert.Equal(t, 22, rx)
	assert.Equal(t, 16, ry)
}

func TestParseRejectsTruncatedData(t *testing.T) {
	_, err := Parse("22_16", []byte{TypeFlat, 0x01})
	assert.Error(t, err)
}

func TestParseRejectsUnknownBlockType(t *testing.T) {
	data := make([]byte, RegionBlocks*3)
	data[0] = 0xFF
	_, err := Parse("22_16", data)
	assert.Error(t, err)
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	region := buildSyntheticRegion()
	data := append(region.Write(), 0x00)
	_, err := Parse("22_16", data)
	assert.Error(t, err)
}

func TestFlatBlockCellsAreFullyWalkable(t *testing.T) {
	region := &Region{RegionX: 1, RegionY: 1, Blocks: []Block{&FlatBlock{Height: 42}}}
	cell := region.GetBlock(0, 0).GetCell(3, 3, 0)
	assert.Equal(t, int16(42), cell.Height)
	assert.True(t, cell.IsFullyWalkable())
}

func TestMultilayerFallsBackToLayerZero(t *testing.T) {
	block := &MultilayerBlock{}
	block.CellLayers[0] = []Cell{{Height: 7, NSWE: NSWEAll}}
	got := block.GetCell(0, 0, 5)
	assert.Equal(t, int16(7), got.Height)
}

func TestComputeStats(t *testing.T) {
	region := buildSyntheticRegion()
	stats := region.ComputeStats()
	assert.Equal(t, RegionBlocks, stats.TotalBlocks)
	assert.Equal(t, "22_16", stats.Region)
	assert.Positive(t, stats.FlatBlocks)
	assert.Positive(t, stats.ComplexBlocks)
	assert.Positive(t, stats.MultilayerBlocks)
	assert.Equal(t, 2, stats.MaxLayerDepth)
}

func TestWorldRegionCoordRoundTrip(t *testing.T) {
	// A world coordinate comes back as the minimum corner of its 16-unit
	// cell, so only inputs already on a cell corner round-trip unchanged.
	cases := []struct{ wx, wy, wantX, wantY int }{
		{0, 0, 0, 0},
		{-327680, -262144, -327680, -262144},
		{123456, -98765, 123456, -98768},
		{-1, -1, -16, -16},
	}
	for _, tc := range cases {
		rx, ry, cx, cy := WorldToRegion(tc.wx, tc.wy)
		wx, wy := RegionToWorld(rx, ry, cx, cy)
		assert.Equal(t, tc.wantX, wx)
		assert.Equal(t, tc.wantY, wy)
	}
}
