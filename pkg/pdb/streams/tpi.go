package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
)

// TPI Stream versions
const (
	TPIStreamVersionV70 = 19990903
	TPIStreamVersionV80 = 20040203
)

// First type index (built-in types are below this)
const TypeIndexBegin = 0x1000

// TPIHeaderSize is the size of the fixed TPI header in bytes.
const TPIHeaderSize = 56

// tpiNumHashBuckets is the bucket count recorded in the header. The hash
// stream itself is not emitted; its index is set to the 0xFFFF sentinel.
const tpiNumHashBuckets = 0x3FFFF

// TPIBuilder assembles a TPI or IPI stream: a V80 header followed by the
// framed type records added in index order. An empty builder serializes
// to a valid stream with zero records, which is what the IPI stream of a
// synthesized PDB looks like.
type TPIBuilder struct {
	records buf.Writer
	next    uint32
}

// NewTPIBuilder creates an empty type stream builder.
func NewTPIBuilder() *TPIBuilder {
	return &TPIBuilder{next: TypeIndexBegin}
}

// Add appends a framed type record and returns its type index. Records
// must already carry their length prefix and LF_PAD alignment, as
// produced by the codeview record constructors.
func (b *TPIBuilder) Add(record []byte) uint32 {
	b.records.Bytes(record)
	idx := b.next
	b.next++
	return idx
}

// Bytes serializes the stream.
func (b *TPIBuilder) Bytes() []byte {
	w := buf.NewWriter(TPIHeaderSize + b.records.Len())
	w.U32(TPIStreamVersionV80)
	w.U32(TPIHeaderSize)
	w.U32(TypeIndexBegin)
	w.U32(b.next) // TypeIndexEnd
	w.U32(uint32(b.records.Len()))
	w.U16(0xFFFF) // HashStreamIndex: none
	w.U16(0xFFFF) // HashAuxStreamIndex: none
	w.U32(4)      // HashKeySize
	w.U32(tpiNumHashBuckets)
	w.I32(0) // HashValueBufferOffset
	w.U32(0) // HashValueBufferLength
	w.I32(0) // IndexOffsetBufferOffset
	w.U32(0) // IndexOffsetBufferLength
	w.I32(0) // HashAdjBufferOffset
	w.U32(0) // HashAdjBufferLength
	w.Bytes(b.records.Data())
	return w.Data()
}

// TPIHeader is the header of the TPI stream.
type TPIHeader struct {
	Version                 uint32
	HeaderSize              uint32
	TypeIndexBegin          uint32
	TypeIndexEnd            uint32
	TypeRecordBytes         uint32
	HashStreamIndex         uint16
	HashAuxStreamIndex      uint16
	HashKeySize             uint32
	NumHashBuckets          uint32
	HashValueBufferOffset   int32
	HashValueBufferLength   uint32
	IndexOffsetBufferOffset int32
	IndexOffsetBufferLength uint32
	HashAdjBufferOffset     int32
	HashAdjBufferLength     uint32
}

// TPIStream represents the parsed TPI (Type Info) stream.
type TPIStream struct {
	Header      TPIHeader
	TypeRecords []TypeRecord
	typeMap     map[uint32]*TypeRecord // Type index to record
}

// TypeRecord represents a single type record.
type TypeRecord struct {
	Index uint32 // Type index
	Kind  uint16 // LF_* type kind
	Data  []byte // Raw record data (excluding length and kind)
}

// ReadTPIStream parses the TPI stream from raw bytes.
func ReadTPIStream(data []byte) (*TPIStream, error) {
	r := bytes.NewReader(data)

	var header TPIHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read TPI header: %w", err)
	}

	// Validate version
	if header.Version != TPIStreamVersionV80 && header.Version != TPIStreamVersionV70 {
		return nil, fmt.Errorf("unsupported TPI version: %d", header.Version)
	}

	// Read type records
	recordData := make([]byte, header.TypeRecordBytes)
	if _, err := io.ReadFull(r, recordData); err != nil {
		return nil, fmt.Errorf("failed to read type records: %w", err)
	}

	tpi := &TPIStream{
		Header:  header,
		typeMap: make(map[uint32]*TypeRecord),
	}

	// Parse individual type records
	typeIndex := header.TypeIndexBegin
	offset := 0
	for offset+4 <= len(recordData) {
		recordLen := binary.LittleEndian.Uint16(recordData[offset:])
		kind := binary.LittleEndian.Uint16(recordData[offset+2:])

		if recordLen < 2 || offset+2+int(recordLen) > len(recordData) {
			break
		}

		record := TypeRecord{
			Index: typeIndex,
			Kind:  kind,
			Data:  recordData[offset+4 : offset+2+int(recordLen)],
		}
		tpi.TypeRecords = append(tpi.TypeRecords, record)
		tpi.typeMap[typeIndex] = &tpi.TypeRecords[len(tpi.TypeRecords)-1]

		offset += 2 + int(recordLen)
		typeIndex++
	}

	return tpi, nil
}

// GetType returns the type record for a given type index.
func (t *TPIStream) GetType(index uint32) *TypeRecord {
	return t.typeMap[index]
}

// NumTypes returns the number of type records in the stream.
func (t *TPIStream) NumTypes() int {
	return len(t.TypeRecords)
}
