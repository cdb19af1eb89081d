package streams

import (
	"encoding/binary"
	"fmt"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
	"github.com/pdbforge/pdbgen/pkg/pdb/hash"
)

// PDB string table constants (the /names stream and the DBI EC-names
// substream share this serialization).
const (
	StringTableSignature   = 0xEFFEEFFE
	StringTableHashVersion = 1
)

// NameTable builds a PDB string table: NUL-terminated strings stored
// consecutively in first-seen order, indexed by a V1-hash bucket array.
// Offsets returned by Add are stable for the lifetime of the builder and
// duplicate strings coalesce to the first offset, so identical input
// always yields identical output bytes.
type NameTable struct {
	buffer  []byte
	offsets map[string]uint32
	order   []string
}

// NewNameTable creates an empty table. Offset 0 is reserved for the
// empty string, as the format's bucket array uses 0 as the vacant marker.
func NewNameTable() *NameTable {
	return &NameTable{
		buffer:  []byte{0},
		offsets: make(map[string]uint32),
	}
}

// Add inserts a string and returns its byte offset into the table.
func (t *NameTable) Add(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := t.offsets[s]; ok {
		return off
	}
	off := uint32(len(t.buffer))
	t.buffer = append(t.buffer, s...)
	t.buffer = append(t.buffer, 0)
	t.offsets[s] = off
	t.order = append(t.order, s)
	return off
}

// Count returns the number of distinct non-empty strings added.
func (t *NameTable) Count() int {
	return len(t.order)
}

// Bytes serializes the table: 12-byte header, string buffer padded to 4,
// bucket array, and trailing name count.
func (t *NameTable) Bytes() []byte {
	padded := len(t.buffer)
	for padded%4 != 0 {
		padded++
	}

	bucketCount := stringTableBuckets(len(t.order))
	buckets := make([]uint32, bucketCount)
	for _, s := range t.order {
		b := hash.BucketV1(s, bucketCount)
		for buckets[b] != 0 {
			b = (b + 1) % bucketCount
		}
		buckets[b] = t.offsets[s]
	}

	w := buf.NewWriter(12 + padded + 4 + 4*int(bucketCount) + 4)
	w.U32(StringTableSignature)
	w.U32(StringTableHashVersion)
	w.U32(uint32(padded))
	w.Bytes(t.buffer)
	w.AlignTo(4, 0)
	w.U32(bucketCount)
	for _, b := range buckets {
		w.U32(b)
	}
	w.U32(uint32(len(t.order)))
	return w.Data()
}

// stringTableBuckets keeps the load factor under 80% so lookups always
// terminate at a vacant bucket.
func stringTableBuckets(numStrings int) uint32 {
	n := uint32(numStrings)*5/4 + 1
	if n == 0 {
		n = 1
	}
	return n
}

// NameTableView provides lookups over a serialized string table.
type NameTableView struct {
	buffer  []byte
	buckets []uint32
	count   uint32
}

// ParseNameTable parses a serialized PDB string table.
func ParseNameTable(data []byte) (*NameTableView, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("string table too small: %d bytes", len(data))
	}
	if sig := binary.LittleEndian.Uint32(data); sig != StringTableSignature {
		return nil, fmt.Errorf("invalid string table signature: 0x%08x", sig)
	}
	if ver := binary.LittleEndian.Uint32(data[4:]); ver != StringTableHashVersion {
		return nil, fmt.Errorf("unsupported string table hash version: %d", ver)
	}
	byteSize := binary.LittleEndian.Uint32(data[8:])
	if uint32(len(data)) < 12+byteSize+4 {
		return nil, fmt.Errorf("string table buffer truncated")
	}

	v := &NameTableView{buffer: data[12 : 12+byteSize]}

	rest := data[12+byteSize:]
	bucketCount := binary.LittleEndian.Uint32(rest)
	if uint32(len(rest)) < 4+4*bucketCount+4 {
		return nil, fmt.Errorf("string table bucket array truncated")
	}
	v.buckets = make([]uint32, bucketCount)
	for i := range v.buckets {
		v.buckets[i] = binary.LittleEndian.Uint32(rest[4+4*i:])
	}
	v.count = binary.LittleEndian.Uint32(rest[4+4*bucketCount:])

	return v, nil
}

// Count returns the recorded number of strings.
func (v *NameTableView) Count() uint32 {
	return v.count
}

// NameAt returns the NUL-terminated string at the given offset.
func (v *NameTableView) NameAt(off uint32) string {
	if off >= uint32(len(v.buffer)) {
		return ""
	}
	end := off
	for end < uint32(len(v.buffer)) && v.buffer[end] != 0 {
		end++
	}
	return string(v.buffer[off:end])
}

// Lookup finds a string's offset via the hash buckets.
func (v *NameTableView) Lookup(s string) (uint32, bool) {
	if len(v.buckets) == 0 {
		return 0, false
	}
	b := hash.BucketV1(s, uint32(len(v.buckets)))
	for i := uint32(0); i < uint32(len(v.buckets)); i++ {
		off := v.buckets[(b+i)%uint32(len(v.buckets))]
		if off == 0 {
			return 0, false
		}
		if v.NameAt(off) == s {
			return off, true
		}
	}
	return 0, false
}
