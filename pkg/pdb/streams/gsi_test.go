package streams

import (
	"encoding/binary"
	"testing"

	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
	"github.com/pdbforge/pdbgen/pkg/pdb/hash"
	"github.com/stretchr/testify/require"
)

func TestBuildSymbolRecordsSortsPublics(t *testing.T) {
	pubs := []Public{
		{Name: "zeta", Flags: codeview.PubFunction, Segment: 1, Offset: 0x30},
		{Name: "alpha", Flags: codeview.PubFunction, Segment: 1, Offset: 0x10},
	}
	refs := []ProcRef{
		{Name: "alpha", Module: 1, SymOffset: 4},
		{Name: "zeta", Module: 1, SymOffset: 0x30},
	}

	sr := BuildSymbolRecords(pubs, refs)
	require.Equal(t, "alpha", sr.Pubs[0].Name)
	require.Equal(t, "zeta", sr.Pubs[1].Name)
	require.Equal(t, uint32(0), sr.PubOffsets[0])

	syms, err := codeview.ParseSymbols(sr.Data)
	require.NoError(t, err)
	require.Len(t, syms, 4)
	require.Equal(t, uint16(codeview.S_PUB32), syms[0].Kind)
	require.Equal(t, uint16(codeview.S_PUB32), syms[1].Kind)
	require.Equal(t, uint16(codeview.S_PROCREF), syms[2].Kind)
	require.Equal(t, uint16(codeview.S_PROCREF), syms[3].Kind)

	pub, err := codeview.ParsePubSym(syms[0].Data)
	require.NoError(t, err)
	require.Equal(t, "alpha", pub.Name)

	ref, err := codeview.ParseProcRefSym(syms[2].Data)
	require.NoError(t, err)
	require.Equal(t, "alpha", ref.Name)
	require.Equal(t, uint32(4), ref.SymOffset)
	require.Equal(t, uint16(1), ref.Module)
}

func TestGSIHashTableLayout(t *testing.T) {
	names := []string{"a", "b", "c"}
	sr := BuildSymbolRecords([]Public{
		{Name: "a", Segment: 1, Offset: 0},
		{Name: "b", Segment: 1, Offset: 8},
		{Name: "c", Segment: 1, Offset: 16},
	}, nil)

	table := BuildGlobalsStream(sr)

	require.Equal(t, uint32(0xFFFFFFFF), binary.LittleEndian.Uint32(table))
	require.Equal(t, uint32(GSIHashVersion), binary.LittleEndian.Uint32(table[4:]))
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(table[8:]), "no procrefs, no hash records")

	// Single-letter names land in distinct buckets; with three publics the
	// publics table carries three records.
	buckets := make(map[uint32]bool)
	for _, n := range names {
		buckets[hash.BucketV1(n, hash.IPHRBuckets)] = true
	}
	require.Len(t, buckets, 3)

	pubTable := BuildPublicsStream(sr)
	symHash := binary.LittleEndian.Uint32(pubTable)
	// header + records + bitmap + one offset per present bucket
	require.Equal(t, uint32(16+8*3+516+4*3), symHash)
}

func TestGSIHashRecordsAndBucketOffsets(t *testing.T) {
	refs := []ProcRef{
		{Name: "a", Module: 1, SymOffset: 4},
		{Name: "b", Module: 1, SymOffset: 24},
		{Name: "c", Module: 1, SymOffset: 44},
	}
	sr := BuildSymbolRecords(nil, refs)
	table := BuildGlobalsStream(sr)

	hrSize := binary.LittleEndian.Uint32(table[8:])
	require.Equal(t, uint32(8*3), hrSize)

	numBuckets := binary.LittleEndian.Uint32(table[12:])
	require.Equal(t, uint32(516+4*3), numBuckets)
	require.Equal(t, 16+int(hrSize)+int(numBuckets), len(table))

	// Hash records hold one-biased offsets with a reference count of 1.
	// "a", "b", "c" hash to adjacent ascending buckets, so record order
	// follows name order.
	for i := 0; i < 3; i++ {
		off := binary.LittleEndian.Uint32(table[16+8*i:])
		cref := binary.LittleEndian.Uint32(table[16+8*i+4:])
		require.Equal(t, sr.RefOffsets[i]+1, off)
		require.Equal(t, uint32(1), cref)
	}

	// Each present bucket's offset counts preceding records in 12-byte
	// units.
	tail := table[len(table)-12:]
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(tail[0:]))
	require.Equal(t, uint32(12), binary.LittleEndian.Uint32(tail[4:]))
	require.Equal(t, uint32(24), binary.LittleEndian.Uint32(tail[8:]))
}

func TestPublicsAddrMapOrder(t *testing.T) {
	pubs := []Public{
		{Name: "c", Segment: 1, Offset: 0x30},
		{Name: "a", Segment: 2, Offset: 0x00},
		{Name: "b", Segment: 1, Offset: 0x10},
	}
	sr := BuildSymbolRecords(pubs, nil)
	stream := BuildPublicsStream(sr)

	symHash := binary.LittleEndian.Uint32(stream)
	addrMapSize := binary.LittleEndian.Uint32(stream[4:])
	require.Equal(t, uint32(12), addrMapSize)
	require.Equal(t, 28+int(symHash)+int(addrMapSize), len(stream))

	addrMap := stream[28+symHash:]
	nameAt := func(recOff uint32) string {
		for i := range sr.Pubs {
			if sr.PubOffsets[i] == recOff {
				return sr.Pubs[i].Name
			}
		}
		return ""
	}
	// Sorted by (segment, offset): b at 1:0x10, c at 1:0x30, a at 2:0.
	require.Equal(t, "b", nameAt(binary.LittleEndian.Uint32(addrMap[0:])))
	require.Equal(t, "c", nameAt(binary.LittleEndian.Uint32(addrMap[4:])))
	require.Equal(t, "a", nameAt(binary.LittleEndian.Uint32(addrMap[8:])))
}
