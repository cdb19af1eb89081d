package streams

import (
	"encoding/binary"
	"testing"

	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
	"github.com/stretchr/testify/require"
)

func TestModuleStreamBuilder(t *testing.T) {
	b := NewModuleStreamBuilder()
	off1 := b.AddProcedure(&codeview.ProcSym{
		Length: 0x40, TypeIndex: 0x1001, Offset: 0x10, Segment: 1, Name: "foo",
	})
	off2 := b.AddProcedure(&codeview.ProcSym{
		Length: 0x20, TypeIndex: 0x1001, Offset: 0x60, Segment: 1, Name: "bar",
	})
	require.Equal(t, uint32(4), off1, "first record follows the signature word")
	require.Greater(t, off2, off1)

	data := b.Bytes()
	require.Equal(t, uint32(codeview.CVSignatureC13), binary.LittleEndian.Uint32(data))
	require.Equal(t, int(b.SymByteSize())+4, len(data), "trailing global refs word")
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[len(data)-4:]))

	syms, err := codeview.ParseSymbols(data[:b.SymByteSize()])
	require.NoError(t, err)
	require.Len(t, syms, 4)

	proc, err := codeview.ParseProcSym(syms[0].Data)
	require.NoError(t, err)
	require.Equal(t, "foo", proc.Name)

	// The scope end pointer is back-patched to the S_END's stream offset.
	endOffset := off1 + 2 + 2 + uint32(len(syms[0].Data))
	require.Equal(t, endOffset, proc.End)
}

func TestSectionHeadersRoundTrip(t *testing.T) {
	in := []SectionHeader{
		NewSectionHeader(".text", 0x1000, 0x2000, SectionMemRead|SectionMemExecute),
		NewSectionHeader(".rdata", 0x3000, 0x800, SectionMemRead),
	}
	data := BuildSectionHeadersStream(in)
	require.Equal(t, 2*SectionHeaderSize, len(data))

	out, err := ParseSectionHeaders(data)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, ".text", out[0].NameString())

	require.True(t, out[0].Contains(0x1000))
	require.True(t, out[0].Contains(0x2FFF))
	require.False(t, out[0].Contains(0x3000))
	require.False(t, out[0].Contains(0xFFF))

	_, err = ParseSectionHeaders(data[:39])
	require.Error(t, err)
}
