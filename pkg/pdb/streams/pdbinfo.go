// Package streams provides builders and parsers for the logical streams
// inside a PDB: the PDB info stream, the TPI/IPI type streams, the DBI
// stream, the /names string table, module symbols and the hashed symbol
// index streams.
package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
	"github.com/pdbforge/pdbgen/pkg/pdb/hash"
)

// PDB Stream versions
const (
	PDBStreamVersionVC70  = 20000404
	PDBStreamVersionVC110 = 20091201
	PDBStreamVersionVC140 = 20140508
)

// PDB feature codes appended after the named stream map. VC140 declares
// that the IPI stream is present.
const (
	PDBFeatureVC110 = PDBStreamVersionVC110
	PDBFeatureVC140 = PDBStreamVersionVC140
)

// PDBInfoBuilder assembles the PDB info stream (stream 1): the
// version/signature/age/GUID header debuggers match against the
// executable, the named stream map, and trailing feature codes.
type PDBInfoBuilder struct {
	Signature uint32 // Link timestamp of the target executable
	Age       uint32
	GUID      [16]byte

	namedNames   []string
	namedIndices []uint32
}

// AddNamedStream registers a name to stream-index mapping. Bucket
// placement depends only on the set of names, so any insertion order
// produces the same bytes unless names collide.
func (b *PDBInfoBuilder) AddNamedStream(name string, index uint32) {
	b.namedNames = append(b.namedNames, name)
	b.namedIndices = append(b.namedIndices, index)
}

// Bytes serializes the stream.
func (b *PDBInfoBuilder) Bytes() []byte {
	w := buf.NewWriter(64)
	w.U32(PDBStreamVersionVC70)
	w.U32(b.Signature)
	w.U32(b.Age)
	w.Bytes(b.GUID[:])

	b.appendNamedStreamMap(w)

	w.U32(PDBFeatureVC140)
	return w.Data()
}

// appendNamedStreamMap serializes the name-to-stream-index hash table:
// string buffer, size/capacity, present and deleted bit vectors, then the
// (key offset, stream index) pairs of occupied buckets in bucket order.
func (b *PDBInfoBuilder) appendNamedStreamMap(w *buf.Writer) {
	strBuf := buf.NewWriter(16)
	keyOffsets := make([]uint32, len(b.namedNames))
	for i, name := range b.namedNames {
		keyOffsets[i] = uint32(strBuf.Len())
		strBuf.CString(name)
	}

	// Capacity grows by doubling once the table passes 2/3 load.
	capacity := uint32(8)
	for uint32(len(b.namedNames)) > capacity*2/3 {
		capacity *= 2
	}

	const vacant = 0xFFFFFFFF
	bucketEntry := make([]uint32, capacity)
	for i := range bucketEntry {
		bucketEntry[i] = vacant
	}
	for i, name := range b.namedNames {
		slot := hash.StringV1(name) % capacity
		for bucketEntry[slot] != vacant {
			slot = (slot + 1) % capacity
		}
		bucketEntry[slot] = uint32(i)
	}

	w.U32(uint32(strBuf.Len()))
	w.Bytes(strBuf.Data())

	w.U32(uint32(len(b.namedNames))) // size
	w.U32(capacity)

	presentWords := (capacity + 31) / 32
	present := make([]uint32, presentWords)
	for slot, entry := range bucketEntry {
		if entry != vacant {
			present[slot/32] |= 1 << (uint32(slot) % 32)
		}
	}
	w.U32(presentWords)
	for _, word := range present {
		w.U32(word)
	}
	w.U32(0) // deleted bit vector is empty

	for _, entry := range bucketEntry {
		if entry == vacant {
			continue
		}
		w.U32(keyOffsets[entry])
		w.U32(b.namedIndices[entry])
	}
}

// PDBInfo represents the parsed PDB Info Stream (Stream 1).
type PDBInfo struct {
	Version      uint32
	Signature    uint32            // Timestamp of PDB creation
	Age          uint32            // Number of times PDB has been written
	GUID         [16]byte          // Unique identifier
	NamedStreams map[string]uint32 // Map of named streams to stream indices
}

// pdbInfoHeader is the fixed header at the start of the PDB info stream.
type pdbInfoHeader struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
}

// ReadPDBInfo parses the PDB info stream.
func ReadPDBInfo(r io.Reader) (*PDBInfo, error) {
	var header pdbInfoHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}

	info := &PDBInfo{
		Version:      header.Version,
		Signature:    header.Signature,
		Age:          header.Age,
		GUID:         header.GUID,
		NamedStreams: make(map[string]uint32),
	}

	// Read the named stream map
	// Format: StringBuffer + size/capacity + bit vectors + bucket pairs

	var strBufSize uint32
	if err := binary.Read(r, binary.LittleEndian, &strBufSize); err != nil {
		// Named streams might not be present in older PDBs
		return info, nil
	}

	strBuf := make([]byte, strBufSize)
	if _, err := io.ReadFull(r, strBuf); err != nil {
		return info, nil
	}

	var mapSize uint32
	if err := binary.Read(r, binary.LittleEndian, &mapSize); err != nil {
		return info, nil
	}

	var capacity uint32
	if err := binary.Read(r, binary.LittleEndian, &capacity); err != nil {
		return info, nil
	}

	var presentWordsCount uint32
	if err := binary.Read(r, binary.LittleEndian, &presentWordsCount); err != nil {
		return info, nil
	}
	presentWords := make([]uint32, presentWordsCount)
	if err := binary.Read(r, binary.LittleEndian, presentWords); err != nil {
		return info, nil
	}

	var deletedWordsCount uint32
	if err := binary.Read(r, binary.LittleEndian, &deletedWordsCount); err != nil {
		return info, nil
	}
	deletedWords := make([]uint32, deletedWordsCount)
	if err := binary.Read(r, binary.LittleEndian, deletedWords); err != nil {
		return info, nil
	}

	// Read key-value pairs for present buckets
	for i := uint32(0); i < capacity; i++ {
		if !isBitSet(presentWords, i) {
			continue
		}

		var keyOffset uint32
		var streamIndex uint32
		if err := binary.Read(r, binary.LittleEndian, &keyOffset); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &streamIndex); err != nil {
			break
		}

		if keyOffset < strBufSize {
			name := extractCString(strBuf[keyOffset:])
			info.NamedStreams[name] = streamIndex
		}
	}

	return info, nil
}

// isBitSet checks if bit n is set in the bit vector.
func isBitSet(words []uint32, n uint32) bool {
	wordIdx := n / 32
	bitIdx := n % 32
	if wordIdx >= uint32(len(words)) {
		return false
	}
	return (words[wordIdx] & (1 << bitIdx)) != 0
}

// extractCString extracts a null-terminated string from bytes.
func extractCString(data []byte) string {
	idx := bytes.IndexByte(data, 0)
	if idx == -1 {
		return string(data)
	}
	return string(data[:idx])
}
