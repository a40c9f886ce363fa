package geodata

import (
	"encoding/binary"

	"github.com/la2geo/geoharvest/internal/apperrors"
)

// Block is one 8x8 cell tile of a region, in one of three on-disk shapes.
type Block interface {
	Type() byte
	GetCell(lx, ly, layer int) Cell
	GetLayers(lx, ly int) []Cell
	LayerCount() int
}

// FlatBlock: all 64 cells share one height, fully walkable.
type FlatBlock struct {
	Height int16
}

func (b *FlatBlock) Type() byte { return TypeFlat }

func (b *FlatBlock) GetCell(lx, ly, layer int) Cell {
	return Cell{Height: b.Height, NSWE: NSWEAll}
}

func (b *FlatBlock) GetLayers(lx, ly int) []Cell {
	return []Cell{b.GetCell(lx, ly, 0)}
}

func (b *FlatBlock) LayerCount() int { return 1 }

// ComplexBlock: 64 independently-walkable cells, one layer each.
type ComplexBlock struct {
	Cells [BlockCells]Cell
}

func (b *ComplexBlock) Type() byte { return TypeComplex }

func (b *ComplexBlock) GetCell(lx, ly, layer int) Cell {
	return b.Cells[lx*BlockCellsY+ly]
}

func (b *ComplexBlock) GetLayers(lx, ly int) []Cell {
	return []Cell{b.GetCell(lx, ly, 0)}
}

func (b *ComplexBlock) SetCell(lx, ly int, c Cell) {
	b.Cells[lx*BlockCellsY+ly] = c
}

func (b *ComplexBlock) LayerCount() int { return 1 }

// MultilayerBlock: each of the 64 cells carries one or more stacked layers;
// layer 0 is the canonical surface.
type MultilayerBlock struct {
	CellLayers [BlockCells][]Cell
}

func (b *MultilayerBlock) Type() byte { return TypeMultilayer }

func (b *MultilayerBlock) GetCell(lx, ly, layer int) Cell {
	layers := b.CellLayers[lx*BlockCellsY+ly]
	if layer < len(layers) {
		return layers[layer]
	}
	return layers[0]
}

func (b *MultilayerBlock) GetLayers(lx, ly int) []Cell {
	return b.CellLayers[lx*BlockCellsY+ly]
}

func (b *MultilayerBlock) SetCell(lx, ly, layer int, c Cell) {
	b.CellLayers[lx*BlockCellsY+ly][layer] = c
}

func (b *MultilayerBlock) LayerCount() int {
	max := 0
	for _, layers := range b.CellLayers {
		if len(layers) > max {
			max = len(layers)
		}
	}
	return max
}

// decodeBlock reads one block starting at data[pos], returning the block and
// the position immediately after it.
func decodeBlock(data []byte, pos int) (Block, int, error) {
	if pos >= len(data) {
		return nil, pos, apperrors.New(apperrors.KindFormat, "geodata.decode_block", "unexpected end of data")
	}
	blockType := data[pos]
	pos++

	switch blockType {
	case TypeFlat:
		if pos+2 > len(data) {
			return nil, pos, apperrors.New(apperrors.KindFormat, "geodata.decode_block", "truncated flat block")
		}
		height := int16(binary.LittleEndian.Uint16(data[pos:]))
		return &FlatBlock{Height: height}, pos + 2, nil

	case TypeComplex:
		var cells [BlockCells]Cell
		for i := range BlockCells {
			if pos+3 > len(data) {
				return nil, pos, apperrors.New(apperrors.KindFormat, "geodata.decode_block", "truncated complex block")
			}
			cells[i] = Cell{
				NSWE:   data[pos],
				Height: int16(binary.LittleEndian.Uint16(data[pos+1:])),
			}
			pos += 3
		}
		return &ComplexBlock{Cells: cells}, pos, nil

	case TypeMultilayer:
		var cellLayers [BlockCells][]Cell
		for i := range BlockCells {
			if pos+1 > len(data) {
				return nil, pos, apperrors.New(apperrors.KindFormat, "geodata.decode_block", "truncated multilayer cell count")
			}
			layerCount := int(data[pos])
			pos++
			layers := make([]Cell, layerCount)
			for l := range layerCount {
				if pos+3 > len(data) {
					return nil, pos, apperrors.New(apperrors.KindFormat, "geodata.decode_block", "truncated multilayer cell")
				}
				layers[l] = Cell{
					NSWE:   data[pos],
					Height: int16(binary.LittleEndian.Uint16(data[pos+1:])),
				}
				pos += 3
			}
			cellLayers[i] = layers
		}
		return &MultilayerBlock{CellLayers: cellLayers}, pos, nil

	default:
		return nil, pos, apperrors.New(apperrors.KindFormat, "geodata.decode_block", "unknown block type").
			WithContext("type", blockType, "offset", pos-1)
	}
}

// encodeBlock appends the on-disk bytes for block to buf and returns the
// extended slice.
func encodeBlock(buf []byte, block Block) []byte {
	switch b := block.(type) {
	case *FlatBlock:
		buf = append(buf, TypeFlat)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(b.Height))

	case *ComplexBlock:
		buf = append(buf, TypeComplex)
		for _, c := range b.Cells {
			buf = append(buf, c.NSWE)
			buf = binary.LittleEndian.AppendUint16(buf, uint16(c.Height))
		}

	case *MultilayerBlock:
		buf = append(buf, TypeMultilayer)
		for _, layers := range b.CellLayers {
			buf = append(buf, byte(len(layers)))
			for _, c := range layers {
				buf = append(buf, c.NSWE)
				buf = binary.LittleEndian.AppendUint16(buf, uint16(c.Height))
			}
		}
	}
	return buf
}
