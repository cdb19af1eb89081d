package streams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameTableEmptyGolden(t *testing.T) {
	got := NewNameTable().Bytes()

	want := []byte{
		0xFE, 0xEF, 0xFE, 0xEF, // signature
		0x01, 0x00, 0x00, 0x00, // hash version 1
		0x04, 0x00, 0x00, 0x00, // buffer size (padded)
		0x00, 0x00, 0x00, 0x00, // buffer: empty string + padding
		0x01, 0x00, 0x00, 0x00, // one bucket
		0x00, 0x00, 0x00, 0x00, // vacant
		0x00, 0x00, 0x00, 0x00, // zero names
	}
	require.Equal(t, want, got)
}

func TestNameTableOffsets(t *testing.T) {
	nt := NewNameTable()
	require.Equal(t, uint32(1), nt.Add("foo"))
	require.Equal(t, uint32(5), nt.Add("bar"))
	require.Equal(t, uint32(1), nt.Add("foo"), "duplicate must coalesce")
	require.Equal(t, uint32(0), nt.Add(""), "empty string is the reserved offset 0")
	require.Equal(t, 2, nt.Count())
}

func TestNameTableDeterminism(t *testing.T) {
	build := func() []byte {
		nt := NewNameTable()
		nt.Add("src/main.c")
		nt.Add("src/util.c")
		nt.Add("src/main.c")
		return nt.Bytes()
	}
	require.Equal(t, build(), build())
}

func TestNameTableParseBack(t *testing.T) {
	nt := NewNameTable()
	fooOff := nt.Add("foo")
	barOff := nt.Add("bar")

	view, err := ParseNameTable(nt.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(2), view.Count())
	require.Equal(t, "foo", view.NameAt(fooOff))
	require.Equal(t, "bar", view.NameAt(barOff))

	off, ok := view.Lookup("foo")
	require.True(t, ok)
	require.Equal(t, fooOff, off)

	off, ok = view.Lookup("bar")
	require.True(t, ok)
	require.Equal(t, barOff, off)

	_, ok = view.Lookup("baz")
	require.False(t, ok)
}

func TestNameTableParseRejectsGarbage(t *testing.T) {
	_, err := ParseNameTable([]byte{1, 2, 3})
	require.Error(t, err)

	bad := NewNameTable().Bytes()
	bad[0] = 0
	_, err = ParseNameTable(bad)
	require.Error(t, err)
}
