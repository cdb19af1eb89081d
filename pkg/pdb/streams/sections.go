package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
)

// Section characteristics flags (IMAGE_SCN_*).
const (
	SectionMemExecute = 0x20000000
	SectionMemRead    = 0x40000000
	SectionMemWrite   = 0x80000000
)

// SectionHeaderSize is the on-disk size of one PE section header.
const SectionHeaderSize = 40

// SectionHeader mirrors the PE IMAGE_SECTION_HEADER layout. The DBI
// optional debug header points at a stream holding one of these per
// image section, which is how debuggers map section:offset addresses
// back to virtual addresses.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// NewSectionHeader builds a header from a name (truncated to 8 bytes)
// and the fields the symbol table carries.
func NewSectionHeader(name string, virtualAddress, virtualSize, characteristics uint32) SectionHeader {
	var h SectionHeader
	copy(h.Name[:], name)
	h.VirtualSize = virtualSize
	h.VirtualAddress = virtualAddress
	h.Characteristics = characteristics
	return h
}

// NameString returns the section name without NUL padding.
func (h *SectionHeader) NameString() string {
	return string(bytes.TrimRight(h.Name[:], "\x00"))
}

// Contains reports whether the image-relative offset falls inside the
// section's virtual range.
func (h *SectionHeader) Contains(rva uint32) bool {
	return rva >= h.VirtualAddress && rva-h.VirtualAddress < h.VirtualSize
}

func (h *SectionHeader) appendTo(w *buf.Writer) {
	w.Bytes(h.Name[:])
	w.U32(h.VirtualSize)
	w.U32(h.VirtualAddress)
	w.U32(h.SizeOfRawData)
	w.U32(h.PointerToRawData)
	w.U32(h.PointerToRelocations)
	w.U32(h.PointerToLineNumbers)
	w.U16(h.NumberOfRelocations)
	w.U16(h.NumberOfLineNumbers)
	w.U32(h.Characteristics)
}

// BuildSectionHeadersStream serializes the section headers stream: the
// headers back to back with no preamble.
func BuildSectionHeadersStream(sections []SectionHeader) []byte {
	w := buf.NewWriter(SectionHeaderSize * len(sections))
	for i := range sections {
		sections[i].appendTo(w)
	}
	return w.Data()
}

// ParseSectionHeaders parses a section headers stream.
func ParseSectionHeaders(data []byte) ([]SectionHeader, error) {
	if len(data)%SectionHeaderSize != 0 {
		return nil, fmt.Errorf("section headers stream size %d is not a multiple of %d", len(data), SectionHeaderSize)
	}
	headers := make([]SectionHeader, len(data)/SectionHeaderSize)
	for i := range headers {
		h := &headers[i]
		off := i * SectionHeaderSize
		copy(h.Name[:], data[off:off+8])
		h.VirtualSize = binary.LittleEndian.Uint32(data[off+8:])
		h.VirtualAddress = binary.LittleEndian.Uint32(data[off+12:])
		h.SizeOfRawData = binary.LittleEndian.Uint32(data[off+16:])
		h.PointerToRawData = binary.LittleEndian.Uint32(data[off+20:])
		h.PointerToRelocations = binary.LittleEndian.Uint32(data[off+24:])
		h.PointerToLineNumbers = binary.LittleEndian.Uint32(data[off+28:])
		h.NumberOfRelocations = binary.LittleEndian.Uint16(data[off+32:])
		h.NumberOfLineNumbers = binary.LittleEndian.Uint16(data[off+34:])
		h.Characteristics = binary.LittleEndian.Uint32(data[off+36:])
	}
	return headers, nil
}
