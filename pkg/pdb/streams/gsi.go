package streams

import (
	"sort"
	"strings"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
	"github.com/pdbforge/pdbgen/pkg/pdb/hash"
)

// GSIHashVersion is the version signature of the GSI hash table layout.
const GSIHashVersion = 0xeffe0000 + 19990810

// gsiHashRecordSize is the on-disk size of one hash record: the
// one-biased symbol offset and a reference count.
const gsiHashRecordSize = 8

// gsiBucketOffsetScale converts a record index into a bucket offset.
// The format stores offsets in units of the original in-memory record
// size, 12 bytes, not the 8-byte serialized size.
const gsiBucketOffsetScale = 12

// Public describes one S_PUB32 record destined for the symbol record
// stream and the publics index.
type Public struct {
	Name    string
	Flags   uint32 // CV_PUBSYMFLAGS
	Segment uint16 // 1-based section index
	Offset  uint32 // Section-relative offset
}

// ProcRef describes one S_PROCREF record pointing into a module symbol
// stream, destined for the globals index.
type ProcRef struct {
	Name      string
	Module    uint16 // 1-based module index
	SymOffset uint32 // Offset of the S_GPROC32 within the module stream
}

// SymbolRecords is the serialized symbol record stream plus the offsets
// the hash streams need to reference individual records.
type SymbolRecords struct {
	Data       []byte
	Pubs       []Public // In serialized (name) order
	PubOffsets []uint32
	Refs       []ProcRef // In input (module) order
	RefOffsets []uint32
}

// BuildSymbolRecords serializes the symbol record stream: all S_PUB32
// records sorted by name, followed by the S_PROCREF records in module
// order. Sorting here keeps the stream bytes independent of input order.
func BuildSymbolRecords(pubs []Public, refs []ProcRef) *SymbolRecords {
	sortedPubs := append([]Public(nil), pubs...)
	sort.SliceStable(sortedPubs, func(i, j int) bool {
		return sortedPubs[i].Name < sortedPubs[j].Name
	})

	w := buf.NewWriter(64 * (len(pubs) + len(refs)))
	sr := &SymbolRecords{
		Pubs:       sortedPubs,
		PubOffsets: make([]uint32, len(sortedPubs)),
		Refs:       refs,
		RefOffsets: make([]uint32, len(refs)),
	}

	for i := range sortedPubs {
		p := &sortedPubs[i]
		rec := codeview.PubSym{
			Flags:   p.Flags,
			Offset:  p.Offset,
			Segment: p.Segment,
			Name:    p.Name,
		}
		sr.PubOffsets[i] = uint32(rec.Encode(w))
	}
	for i := range refs {
		r := &refs[i]
		rec := codeview.ProcRefSym{
			SymOffset: r.SymOffset,
			Module:    r.Module,
			Name:      r.Name,
		}
		sr.RefOffsets[i] = uint32(rec.Encode(w))
	}

	sr.Data = w.Data()
	return sr
}

// BuildGlobalsStream builds the globals stream: a GSI hash table over the
// S_PROCREF records in the symbol record stream.
func BuildGlobalsStream(sr *SymbolRecords) []byte {
	names := make([]string, len(sr.Refs))
	for i := range sr.Refs {
		names[i] = sr.Refs[i].Name
	}
	w := buf.NewWriter(128)
	appendGSIHashTable(w, names, sr.RefOffsets)
	return w.Data()
}

// BuildPublicsStream builds the publics stream: a fixed header, the GSI
// hash table over the S_PUB32 records, and the address map, which lists
// symbol record offsets sorted by ascending (segment, offset, name).
func BuildPublicsStream(sr *SymbolRecords) []byte {
	names := make([]string, len(sr.Pubs))
	for i := range sr.Pubs {
		names[i] = sr.Pubs[i].Name
	}

	table := buf.NewWriter(128)
	appendGSIHashTable(table, names, sr.PubOffsets)

	addrOrder := make([]int, len(sr.Pubs))
	for i := range addrOrder {
		addrOrder[i] = i
	}
	sort.SliceStable(addrOrder, func(a, b int) bool {
		pa, pb := &sr.Pubs[addrOrder[a]], &sr.Pubs[addrOrder[b]]
		if pa.Segment != pb.Segment {
			return pa.Segment < pb.Segment
		}
		if pa.Offset != pb.Offset {
			return pa.Offset < pb.Offset
		}
		return pa.Name < pb.Name
	})

	w := buf.NewWriter(28 + table.Len() + 4*len(sr.Pubs))
	w.U32(uint32(table.Len()))      // SymHash: size of the hash table
	w.U32(uint32(4 * len(sr.Pubs))) // AddrMap size
	w.U32(0)                        // NumThunks
	w.U32(0)                        // SizeOfThunk
	w.U16(0)                        // ISectThunkTable
	w.U16(0)                        // padding
	w.U32(0)                        // OffThunkTable
	w.U32(0)                        // NumSections
	w.Bytes(table.Data())
	for _, idx := range addrOrder {
		w.U32(sr.PubOffsets[idx])
	}
	return w.Data()
}

// gsiEntry pairs a symbol name with its symbol record stream offset.
type gsiEntry struct {
	name   string
	offset uint32
	bucket uint32
}

// appendGSIHashTable serializes a GSI hash table: header, hash records
// grouped by bucket, the present-bucket bitmap, and one offset per
// present bucket.
func appendGSIHashTable(w *buf.Writer, names []string, offsets []uint32) {
	entries := make([]gsiEntry, len(names))
	for i, name := range names {
		entries[i] = gsiEntry{
			name:   name,
			offset: offsets[i],
			bucket: hash.BucketV1(name, hash.IPHRBuckets),
		}
	}
	// Within a bucket the reference order is case-insensitive name, then
	// record offset.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].bucket != entries[j].bucket {
			return entries[i].bucket < entries[j].bucket
		}
		li, lj := strings.ToLower(entries[i].name), strings.ToLower(entries[j].name)
		if li != lj {
			return li < lj
		}
		return entries[i].offset < entries[j].offset
	})

	bucketCounts := make([]uint32, hash.IPHRBuckets)
	for _, e := range entries {
		bucketCounts[e.bucket]++
	}
	numPresent := 0
	for _, c := range bucketCounts {
		if c > 0 {
			numPresent++
		}
	}

	// The bitmap covers IPHRBuckets+1 bits, rounded up to whole words.
	bitmapWords := (hash.IPHRBuckets + 1 + 31) / 32

	w.U32(0xFFFFFFFF) // VerSignature
	w.U32(GSIHashVersion)
	w.U32(uint32(gsiHashRecordSize * len(entries)))
	w.U32(uint32(4*bitmapWords + 4*numPresent))

	for _, e := range entries {
		w.U32(e.offset + 1) // one-biased
		w.U32(1)            // reference count
	}

	bitmap := make([]uint32, bitmapWords)
	for b, c := range bucketCounts {
		if c > 0 {
			bitmap[b/32] |= 1 << (uint32(b) % 32)
		}
	}
	for _, word := range bitmap {
		w.U32(word)
	}

	recordsBefore := uint32(0)
	for _, c := range bucketCounts {
		if c > 0 {
			w.U32(recordsBefore * gsiBucketOffsetScale)
		}
		recordsBefore += c
	}
}
