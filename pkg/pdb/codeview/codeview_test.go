package codeview

import (
	"encoding/binary"
	"testing"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
	"github.com/stretchr/testify/require"
)

func TestArgListRecordGolden(t *testing.T) {
	want := []byte{
		0x06, 0x00, // length excluding itself
		0x01, 0x12, // LF_ARGLIST
		0x00, 0x00, 0x00, 0x00, // zero arguments
	}
	require.Equal(t, want, ArgListRecord(nil))
}

func TestProcedureRecordGolden(t *testing.T) {
	want := []byte{
		0x0E, 0x00,
		0x08, 0x10, // LF_PROCEDURE
		0x03, 0x00, 0x00, 0x00, // return type T_VOID
		0x00,       // calling convention NearC
		0x00,       // attributes
		0x00, 0x00, // parameter count
		0x00, 0x10, 0x00, 0x00, // argument list at 0x1000
	}
	require.Equal(t, want, ProcedureRecord(T_VOID, CallNearC, 0, 0x1000))
}

func TestTypeRecordPadding(t *testing.T) {
	// One argument makes the payload 4 bytes longer, still aligned.
	rec := ArgListRecord([]uint32{T_VOID})
	require.Equal(t, 0, len(rec)%4)
	require.Equal(t, uint16(len(rec)-2), binary.LittleEndian.Uint16(rec))
}

func TestPubSymGolden(t *testing.T) {
	w := buf.NewWriter(32)
	pub := &PubSym{Flags: PubFunction, Offset: 0x10, Segment: 1, Name: "foo"}
	start := pub.Encode(w)
	require.Equal(t, 0, start)

	want := []byte{
		0x12, 0x00,
		0x0E, 0x11, // S_PUB32
		0x02, 0x00, 0x00, 0x00, // flags: function
		0x10, 0x00, 0x00, 0x00, // offset
		0x01, 0x00, // segment
		'f', 'o', 'o', 0x00,
		0x00, 0x00, // alignment
	}
	require.Equal(t, want, w.Data())
}

func TestProcSymRoundTrip(t *testing.T) {
	w := buf.NewWriter(64)
	proc := &ProcSym{
		Length:    0x40,
		DbgEnd:    0,
		TypeIndex: 0x1001,
		Offset:    0x123,
		Segment:   2,
		Name:      "do_work",
	}
	start := proc.Encode(w)
	end := EncodeEnd(w)
	w.SetU32(start+ProcSymEndFieldOffset, uint32(end))

	syms, err := ParseSymbols(w.Data())
	require.NoError(t, err)
	require.Len(t, syms, 2)
	require.Equal(t, uint16(S_GPROC32), syms[0].Kind)
	require.Equal(t, uint16(S_END), syms[1].Kind)

	parsed, err := ParseProcSym(syms[0].Data)
	require.NoError(t, err)
	require.Equal(t, proc.Length, parsed.Length)
	require.Equal(t, proc.TypeIndex, parsed.TypeIndex)
	require.Equal(t, proc.Offset, parsed.Offset)
	require.Equal(t, proc.Segment, parsed.Segment)
	require.Equal(t, proc.Name, parsed.Name)
	require.Equal(t, uint32(end), parsed.End)
}

func TestProcRefSymRoundTrip(t *testing.T) {
	w := buf.NewWriter(32)
	ref := &ProcRefSym{SymOffset: 4, Module: 1, Name: "foo"}
	ref.Encode(w)

	syms, err := ParseSymbols(w.Data())
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, uint16(S_PROCREF), syms[0].Kind)

	parsed, err := ParseProcRefSym(syms[0].Data)
	require.NoError(t, err)
	require.Equal(t, ref.SymOffset, parsed.SymOffset)
	require.Equal(t, ref.Module, parsed.Module)
	require.Equal(t, ref.Name, parsed.Name)
}

func TestSymbolRecordFraming(t *testing.T) {
	w := buf.NewWriter(64)
	for _, name := range []string{"", "a", "ab", "abc", "abcd"} {
		(&PubSym{Name: name}).Encode(w)
	}
	data := w.Data()
	require.Equal(t, 0, len(data)%4)

	// Every record length keeps the next record 4-byte aligned.
	off := 0
	for off < len(data) {
		recLen := int(binary.LittleEndian.Uint16(data[off:]))
		require.Equal(t, 0, (recLen+2)%4)
		off += 2 + recLen
	}
	require.Equal(t, len(data), off)
}

func TestParseSymbolsSkipsSignature(t *testing.T) {
	w := buf.NewWriter(32)
	w.U32(CVSignatureC13)
	(&PubSym{Name: "x"}).Encode(w)

	syms, err := ParseSymbols(w.Data())
	require.NoError(t, err)
	require.Len(t, syms, 1)
	require.Equal(t, uint16(S_PUB32), syms[0].Kind)
}
