package pdb

import (
	"bytes"
	"fmt"

	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
	"github.com/pdbforge/pdbgen/pkg/pdb/msf"
	"github.com/pdbforge/pdbgen/pkg/pdb/streams"
)

// File provides read access to a PDB image. It parses the core streams
// eagerly and symbol streams on demand.
type File struct {
	msf     *msf.File
	pdbInfo *streams.PDBInfo
	tpi     *streams.TPIStream
	dbi     *streams.DBIStream

	// Cached results
	functions []Function
	publics   []PublicSymbol
}

// Function is a procedure symbol read from a module stream.
type Function struct {
	Name      string `json:"name"`
	Offset    uint32 `json:"offset"`
	Segment   uint16 `json:"segment"`
	Length    uint32 `json:"length"`
	TypeIndex uint32 `json:"type_index"`
	Module    string `json:"module,omitempty"`
}

// PublicSymbol is an S_PUB32 record from the symbol record stream.
type PublicSymbol struct {
	Name     string `json:"name"`
	Offset   uint32 `json:"offset"`
	Segment  uint16 `json:"segment"`
	Function bool   `json:"function"`
}

// Module describes one module entry from the DBI stream.
type Module struct {
	Name         string `json:"name"`
	ObjectFile   string `json:"object_file"`
	SymbolStream uint16 `json:"symbol_stream"`
	SymbolSize   uint32 `json:"symbol_size"`
}

// Info contains the identity and shape of an opened PDB.
type Info struct {
	GUID         GUID              `json:"guid"`
	Signature    uint32            `json:"signature"`
	Age          uint32            `json:"age"`
	Version      uint32            `json:"version"`
	Machine      string            `json:"machine"`
	Streams      int               `json:"streams"`
	NamedStreams map[string]uint32 `json:"named_streams,omitempty"`
}

// OpenImage parses a PDB from an in-memory file image.
func OpenImage(data []byte) (*File, error) {
	m, err := msf.Read(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}

	f := &File{msf: m}

	// Parse PDB info stream
	if m.NumStreams() > StreamPDB {
		if data, err := m.StreamData(StreamPDB); err == nil && len(data) > 0 {
			f.pdbInfo, _ = streams.ReadPDBInfo(bytes.NewReader(data))
		}
	}

	// Parse TPI stream
	if m.NumStreams() > StreamTPI {
		if data, err := m.StreamData(StreamTPI); err == nil && len(data) > 0 {
			f.tpi, _ = streams.ReadTPIStream(data)
		}
	}

	// Parse DBI stream
	if m.NumStreams() > StreamDBI {
		if data, err := m.StreamData(StreamDBI); err == nil && len(data) > 0 {
			f.dbi, _ = streams.ReadDBIStream(data)
		}
	}

	return f, nil
}

// Info returns basic PDB file information.
func (f *File) Info() *Info {
	info := &Info{
		Streams: f.msf.NumStreams(),
	}

	if f.pdbInfo != nil {
		info.GUID = GUID(f.pdbInfo.GUID)
		info.Signature = f.pdbInfo.Signature
		info.Age = f.pdbInfo.Age
		info.Version = f.pdbInfo.Version
		info.NamedStreams = f.pdbInfo.NamedStreams
	}

	if f.dbi != nil {
		info.Machine = streams.MachineTypeName(f.dbi.Header.Machine)
	}

	return info
}

// Functions returns all procedures found in the module symbol streams.
func (f *File) Functions() []Function {
	if f.functions != nil {
		return f.functions
	}

	f.functions = make([]Function, 0)

	if f.dbi == nil {
		return f.functions
	}

	for _, mod := range f.dbi.Modules {
		if !mod.HasSymbols() || int(mod.ModuleSymStream) >= f.msf.NumStreams() {
			continue
		}

		data, err := f.msf.StreamData(int(mod.ModuleSymStream))
		if err != nil || len(data) == 0 {
			continue
		}

		// Only read SymByteSize bytes for symbols
		symData := data
		if uint32(len(data)) > mod.SymByteSize {
			symData = data[:mod.SymByteSize]
		}

		symbols, _ := codeview.ParseSymbols(symData)
		for _, sym := range symbols {
			if !codeview.IsProcSymbol(sym.Kind) {
				continue
			}
			proc, err := codeview.ParseProcSym(sym.Data)
			if err != nil {
				continue
			}
			f.functions = append(f.functions, Function{
				Name:      proc.Name,
				Offset:    proc.Offset,
				Segment:   proc.Segment,
				Length:    proc.Length,
				TypeIndex: proc.TypeIndex,
				Module:    mod.ModuleName,
			})
		}
	}

	return f.functions
}

// PublicSymbols returns all S_PUB32 records from the symbol record
// stream, in stream order.
func (f *File) PublicSymbols() []PublicSymbol {
	if f.publics != nil {
		return f.publics
	}

	f.publics = make([]PublicSymbol, 0)

	if f.dbi == nil || f.dbi.Header.SymRecordStream == 0xFFFF {
		return f.publics
	}
	if int(f.dbi.Header.SymRecordStream) >= f.msf.NumStreams() {
		return f.publics
	}

	data, err := f.msf.StreamData(int(f.dbi.Header.SymRecordStream))
	if err != nil || len(data) == 0 {
		return f.publics
	}

	symbols, _ := codeview.ParseSymbols(data)
	for _, sym := range symbols {
		if sym.Kind != codeview.S_PUB32 {
			continue
		}
		pub, err := codeview.ParsePubSym(sym.Data)
		if err != nil {
			continue
		}
		f.publics = append(f.publics, PublicSymbol{
			Name:     pub.Name,
			Offset:   pub.Offset,
			Segment:  pub.Segment,
			Function: pub.Flags&codeview.PubFunction != 0,
		})
	}

	return f.publics
}

// Modules returns the DBI module list.
func (f *File) Modules() []Module {
	if f.dbi == nil {
		return nil
	}

	modules := make([]Module, len(f.dbi.Modules))
	for i, mod := range f.dbi.Modules {
		modules[i] = Module{
			Name:         mod.ModuleName,
			ObjectFile:   mod.ObjFileName,
			SymbolStream: mod.ModuleSymStream,
			SymbolSize:   mod.SymByteSize,
		}
	}
	return modules
}

// SectionHeaders returns the section headers stream contents, located via
// the DBI optional debug header.
func (f *File) SectionHeaders() ([]streams.SectionHeader, error) {
	if f.dbi == nil || f.dbi.SectionHeaderStream == 0xFFFF {
		return nil, nil
	}
	if int(f.dbi.SectionHeaderStream) >= f.msf.NumStreams() {
		return nil, fmt.Errorf("section header stream %d out of range", f.dbi.SectionHeaderStream)
	}
	data, err := f.msf.StreamData(int(f.dbi.SectionHeaderStream))
	if err != nil {
		return nil, err
	}
	return streams.ParseSectionHeaders(data)
}

// TypeCount returns the number of types in the TPI stream.
func (f *File) TypeCount() int {
	if f.tpi == nil {
		return 0
	}
	return f.tpi.NumTypes()
}
