// Package codeview encodes and decodes CodeView debug records: the symbol
// records placed in PDB symbol streams and the type records placed in the
// TPI/IPI streams.
package codeview

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
)

// Symbol record kind constants (S_* values).
const (
	S_END     = 0x0006
	S_PUB32   = 0x110E
	S_LPROC32 = 0x110F
	S_GPROC32 = 0x1110
	S_PROCREF = 0x1125
)

// CVSignatureC13 is the signature word at the start of a module symbol
// stream.
const CVSignatureC13 = 4

// MaxSymbolNameLength bounds the names this package can frame: record
// lengths are 16-bit, so a name must leave room for the record header,
// the fixed payload of the largest symbol kind, the NUL terminator,
// alignment padding, and any suffix appended during range splitting.
// Callers must reject longer names before encoding.
const MaxSymbolNameLength = 0xFF00

// Public symbol flags (CV_PUBSYMFLAGS).
const (
	PubCode     = 0x1
	PubFunction = 0x2
	PubManaged  = 0x4
	PubMSIL     = 0x8
)

// SymbolRecord is a raw symbol record: kind plus payload, excluding the
// length field.
type SymbolRecord struct {
	Kind uint16
	Data []byte
}

// ProcSym is a procedure symbol (S_GPROC32/S_LPROC32).
type ProcSym struct {
	Parent    uint32 // Offset of parent scope, 0 for top level
	End       uint32 // Offset of the matching S_END record
	Next      uint32 // Offset of next procedure, 0 if unused
	Length    uint32 // Procedure length in bytes
	DbgStart  uint32 // Debug start offset within the procedure
	DbgEnd    uint32 // Debug end offset within the procedure
	TypeIndex uint32 // Type index of the procedure signature
	Offset    uint32 // Section-relative code offset
	Segment   uint16 // 1-based section index
	Flags     uint8  // Procedure flags
	Name      string
}

// PubSym is a public symbol (S_PUB32).
type PubSym struct {
	Flags   uint32 // CV_PUBSYMFLAGS
	Offset  uint32 // Section-relative offset
	Segment uint16 // 1-based section index
	Name    string
}

// ProcRefSym is a procedure reference (S_PROCREF) pointing from the
// globals table into a module symbol stream.
type ProcRefSym struct {
	SumName   uint32 // Checksum of the referenced symbol name, 0 if unused
	SymOffset uint32 // Offset of the S_GPROC32 within the module stream
	Module    uint16 // 1-based module index
	Name      string
}

// ProcSymEndFieldOffset is the offset of the End field from the start of
// an encoded S_GPROC32 record, for back-patching.
const ProcSymEndFieldOffset = 8

// Encode appends the S_GPROC32 record and returns its start offset within
// the writer. The End field is typically back-patched by the caller once
// the matching S_END offset is known.
func (p *ProcSym) Encode(w *buf.Writer) int {
	start := beginSymbolRecord(w, S_GPROC32)
	w.U32(p.Parent)
	w.U32(p.End)
	w.U32(p.Next)
	w.U32(p.Length)
	w.U32(p.DbgStart)
	w.U32(p.DbgEnd)
	w.U32(p.TypeIndex)
	w.U32(p.Offset)
	w.U16(p.Segment)
	w.U8(p.Flags)
	w.CString(p.Name)
	endSymbolRecord(w, start)
	return start
}

// EncodeEnd appends an S_END scope terminator and returns its start
// offset within the writer.
func EncodeEnd(w *buf.Writer) int {
	start := beginSymbolRecord(w, S_END)
	endSymbolRecord(w, start)
	return start
}

// Encode appends the S_PUB32 record and returns its start offset within
// the writer.
func (p *PubSym) Encode(w *buf.Writer) int {
	start := beginSymbolRecord(w, S_PUB32)
	w.U32(p.Flags)
	w.U32(p.Offset)
	w.U16(p.Segment)
	w.CString(p.Name)
	endSymbolRecord(w, start)
	return start
}

// Encode appends the S_PROCREF record and returns its start offset within
// the writer.
func (p *ProcRefSym) Encode(w *buf.Writer) int {
	start := beginSymbolRecord(w, S_PROCREF)
	w.U32(p.SumName)
	w.U32(p.SymOffset)
	w.U16(p.Module)
	w.CString(p.Name)
	endSymbolRecord(w, start)
	return start
}

// beginSymbolRecord reserves the length field and writes the record kind.
func beginSymbolRecord(w *buf.Writer, kind uint16) int {
	start := w.Len()
	w.U16(0) // length, patched by endSymbolRecord
	w.U16(kind)
	return start
}

// endSymbolRecord zero-pads the record to 4 bytes and patches the length
// field. The length excludes the length field itself.
func endSymbolRecord(w *buf.Writer, start int) {
	for (w.Len()-start)%4 != 0 {
		w.U8(0)
	}
	w.SetU16(start, uint16(w.Len()-start-2))
}

// ParseSymbols splits raw symbol stream data into records. A leading
// CV_SIGNATURE_C13 word, present in module symbol streams, is skipped.
func ParseSymbols(data []byte) ([]SymbolRecord, error) {
	var symbols []SymbolRecord
	offset := 0

	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == CVSignatureC13 {
		offset = 4
	}

	for offset+4 <= len(data) {
		recLen := binary.LittleEndian.Uint16(data[offset:])
		offset += 2

		if recLen < 2 || offset+int(recLen) > len(data) {
			break
		}

		recKind := binary.LittleEndian.Uint16(data[offset:])

		sym := SymbolRecord{
			Kind: recKind,
			Data: make([]byte, recLen-2),
		}
		copy(sym.Data, data[offset+2:offset+int(recLen)])

		symbols = append(symbols, sym)
		offset += int(recLen)
	}

	return symbols, nil
}

// ParseProcSym parses a procedure symbol record payload.
func ParseProcSym(data []byte) (*ProcSym, error) {
	if len(data) < 35 {
		return nil, fmt.Errorf("proc symbol data too small: %d bytes", len(data))
	}

	proc := &ProcSym{
		Parent:    binary.LittleEndian.Uint32(data[0:]),
		End:       binary.LittleEndian.Uint32(data[4:]),
		Next:      binary.LittleEndian.Uint32(data[8:]),
		Length:    binary.LittleEndian.Uint32(data[12:]),
		DbgStart:  binary.LittleEndian.Uint32(data[16:]),
		DbgEnd:    binary.LittleEndian.Uint32(data[20:]),
		TypeIndex: binary.LittleEndian.Uint32(data[24:]),
		Offset:    binary.LittleEndian.Uint32(data[28:]),
		Segment:   binary.LittleEndian.Uint16(data[32:]),
		Flags:     data[34],
	}
	proc.Name = extractName(data[35:])

	return proc, nil
}

// ParsePubSym parses a public symbol record payload.
func ParsePubSym(data []byte) (*PubSym, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("pub symbol data too small: %d bytes", len(data))
	}

	pub := &PubSym{
		Flags:   binary.LittleEndian.Uint32(data[0:]),
		Offset:  binary.LittleEndian.Uint32(data[4:]),
		Segment: binary.LittleEndian.Uint16(data[8:]),
	}
	pub.Name = extractName(data[10:])

	return pub, nil
}

// ParseProcRefSym parses a procedure reference record payload.
func ParseProcRefSym(data []byte) (*ProcRefSym, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("procref symbol data too small: %d bytes", len(data))
	}

	ref := &ProcRefSym{
		SumName:   binary.LittleEndian.Uint32(data[0:]),
		SymOffset: binary.LittleEndian.Uint32(data[4:]),
		Module:    binary.LittleEndian.Uint16(data[8:]),
	}
	ref.Name = extractName(data[10:])

	return ref, nil
}

// extractName reads a NUL-terminated name from the tail of a record.
func extractName(data []byte) string {
	end := bytes.IndexByte(data, 0)
	if end == -1 {
		return string(data)
	}
	return string(data[:end])
}

// SymbolKindName returns the name for a symbol kind constant.
func SymbolKindName(kind uint16) string {
	switch kind {
	case S_END:
		return "S_END"
	case S_PUB32:
		return "S_PUB32"
	case S_LPROC32:
		return "S_LPROC32"
	case S_GPROC32:
		return "S_GPROC32"
	case S_PROCREF:
		return "S_PROCREF"
	default:
		return fmt.Sprintf("S_0x%04x", kind)
	}
}

// IsProcSymbol returns true if the kind is a procedure symbol.
func IsProcSymbol(kind uint16) bool {
	return kind == S_GPROC32 || kind == S_LPROC32
}
