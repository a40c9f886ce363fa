package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.WriteByte(0xAB)
	w.WriteUint16(0xBEEF)
	w.WriteInt32(-12345)
	w.WriteUint32(0xDEADBEEF)
	w.WriteDouble(3.5)
	w.WriteString("scanner01")
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())

	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), b)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), u16)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-12345), i32)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), u32)

	d, err := r.ReadDouble()
	require.NoError(t, err)
	require.Equal(t, 3.5, d)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "scanner01", s)

	tail, err := r.ReadBytes(3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, tail)

	require.Equal(t, 0, r.Remaining())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadUint32()
	require.Error(t, err)
}

func TestWriterSurrogatePair(t *testing.T) {
	w := NewWriter(16)
	w.WriteString("\U0001F600")
	r := NewReader(w.Bytes())
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "\U0001F600", s)
}

func TestWriterPoolReset(t *testing.T) {
	w := Get()
	w.WriteByte(1)
	require.Equal(t, 1, w.Len())
	w.Put()

	w2 := Get()
	require.Equal(t, 0, w2.Len())
	w2.Put()
}
