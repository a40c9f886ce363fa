// Package wire provides a little-endian binary codec (Reader and Writer,
// with UTF-16LE strings). The game-server client builds its outgoing
// packets with Writer; login frames and scan_geo row payloads are encoded
// and decoded without this package.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// defaultStringCapacity covers the common case of account/character names.
const defaultStringCapacity = 16

// Reader sequentially decodes little-endian fields from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential reads starting at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("wire: need %d bytes at pos %d, have %d", n, r.pos, len(r.data))
	}
	return nil
}

// ReadByte reads a single unsigned byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 reads an unsigned 16-bit little-endian field.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadInt16 reads a signed 16-bit little-endian field.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads an unsigned 32-bit little-endian field.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadInt32 reads a signed 32-bit little-endian field.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads an unsigned 64-bit little-endian field.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadDouble reads an IEEE-754 float64, little-endian.
func (r *Reader) ReadDouble() (float64, error) {
	bits, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// ReadString reads a UTF-16LE, null-terminated string.
func (r *Reader) ReadString() (string, error) {
	units := make([]uint16, 0, defaultStringCapacity)
	for {
		u, err := r.ReadUint16()
		if err != nil {
			return "", fmt.Errorf("reading string: %w", err)
		}
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}

// ReadBytes returns a zero-copy view of the next n bytes. Callers must not
// mutate the result; use ReadBytesCopy when a private copy is required.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("wire: negative read length %d", n)
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadBytesCopy returns an owned copy of the next n bytes.
func (r *Reader) ReadBytesCopy(n int) ([]byte, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position reports the current read offset.
func (r *Reader) Position() int {
	return r.pos
}

// Seek repositions the reader to an absolute offset.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return fmt.Errorf("wire: seek %d out of range [0,%d]", pos, len(r.data))
	}
	r.pos = pos
	return nil
}
