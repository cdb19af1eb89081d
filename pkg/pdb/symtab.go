// Package pdb synthesizes Microsoft PDB debug files from an abstract
// symbol table, and reads back the streams it writes.
package pdb

// Range is a half-open [Start, End) interval of image-relative offsets.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Length returns the range length in bytes.
func (r Range) Length() uint32 {
	return r.End - r.Start
}

// FunctionSymbol is one function to be represented in the output PDB. A
// function with several ranges is split into one procedure per range,
// with `_partN` suffixes on the continuation pieces.
type FunctionSymbol struct {
	Name   string  `json:"name"`
	Ranges []Range `json:"ranges"`
}

// SectionInfo describes one section of the target image. VirtualAddress
// and VirtualSize define the address range used to place functions;
// Characteristics carries the IMAGE_SCN_* flags.
type SectionInfo struct {
	Name            string `json:"name"`
	VirtualAddress  uint32 `json:"virtual_address"`
	VirtualSize     uint32 `json:"virtual_size"`
	SizeOfRawData   uint32 `json:"size_of_raw_data,omitempty"`
	Characteristics uint32 `json:"characteristics"`
}

// ImageIdentity ties the PDB to its executable: a debugger matches the
// GUID, age and signature against the image's debug directory.
type ImageIdentity struct {
	GUID      GUID   `json:"guid"`
	Signature uint32 `json:"signature"`
	Age       uint32 `json:"age"`
	Machine   uint16 `json:"machine"`
	ImageSize uint32 `json:"image_size,omitempty"`
}

// SymbolTable is the full input to Synthesize.
type SymbolTable struct {
	Identity  ImageIdentity    `json:"identity"`
	Sections  []SectionInfo    `json:"sections"`
	Functions []FunctionSymbol `json:"functions"`
}
