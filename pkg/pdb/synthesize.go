package pdb

import (
	"fmt"
	"sort"

	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
	"github.com/pdbforge/pdbgen/pkg/pdb/msf"
	"github.com/pdbforge/pdbgen/pkg/pdb/streams"
)

// Stream indices. The first five match the fixed assignments of the PDB
// format; the rest are this writer's layout, referenced by index from the
// DBI stream and the named stream map.
const (
	StreamOldDirectory   = 0 // Previous directory, left empty
	StreamPDB            = 1 // PDB info stream
	StreamTPI            = 2 // Type info stream
	StreamDBI            = 3 // Debug info stream
	StreamIPI            = 4 // ID info stream
	StreamNames          = 5 // /names string table
	StreamModuleSyms     = 6 // Symbols of the single synthetic module
	StreamGlobals        = 7 // Globals hash
	StreamPublics        = 8 // Publics hash + address map
	StreamSymbolRecords  = 9 // S_PUB32 and S_PROCREF records
	StreamSectionHeaders = 10
	StreamCount          = 11
)

// Synthetic module identity. Debuggers display these as the "object file"
// the symbols came from.
const (
	moduleName  = "pdbgen_module"
	objFileName = "/fake/path/pdbgen.obj"
)

// Result is the outcome of a synthesis run.
type Result struct {
	Data []byte // Complete PDB file image

	// SkippedFunctions lists post-split symbol names whose start offset
	// fell outside every section.
	SkippedFunctions []string
}

// proc is one post-split procedure placed in a section.
type proc struct {
	name    string
	segment uint16 // 1-based section index
	offset  uint32 // Section-relative
	length  uint32
}

// Synthesize builds a complete PDB file from the symbol table. The output
// depends only on the input: the same table always produces identical
// bytes.
func Synthesize(t *SymbolTable) (*Result, error) {
	if err := validate(t.Functions); err != nil {
		return nil, err
	}

	res := &Result{}
	procs := placeFunctions(t, res)

	// Module stream: procedures in address order.
	sort.SliceStable(procs, func(i, j int) bool {
		if procs[i].segment != procs[j].segment {
			return procs[i].segment < procs[j].segment
		}
		if procs[i].offset != procs[j].offset {
			return procs[i].offset < procs[j].offset
		}
		return procs[i].name < procs[j].name
	})

	tpi := streams.NewTPIBuilder()
	argList := tpi.Add(codeview.ArgListRecord(nil))
	procType := tpi.Add(codeview.ProcedureRecord(codeview.T_VOID, codeview.CallNearC, 0, argList))

	mod := streams.NewModuleStreamBuilder()
	pubs := make([]streams.Public, 0, len(procs))
	refs := make([]streams.ProcRef, 0, len(procs))
	for i := range procs {
		p := &procs[i]
		symOff := mod.AddProcedure(&codeview.ProcSym{
			Length:    p.length,
			TypeIndex: procType,
			Offset:    p.offset,
			Segment:   p.segment,
			Name:      p.name,
		})
		pubs = append(pubs, streams.Public{
			Name:    p.name,
			Flags:   codeview.PubFunction,
			Segment: p.segment,
			Offset:  p.offset,
		})
		refs = append(refs, streams.ProcRef{
			Name:      p.name,
			Module:    1,
			SymOffset: symOff,
		})
	}

	symRecords := streams.BuildSymbolRecords(pubs, refs)

	sections := make([]streams.SectionHeader, len(t.Sections))
	for i := range t.Sections {
		s := &t.Sections[i]
		h := streams.NewSectionHeader(s.Name, s.VirtualAddress, s.VirtualSize, s.Characteristics)
		h.SizeOfRawData = s.SizeOfRawData
		sections[i] = h
	}

	dbi := &streams.DBIBuilder{
		Age:                 t.Identity.Age,
		Machine:             t.Identity.Machine,
		GlobalStreamIndex:   StreamGlobals,
		PublicStreamIndex:   StreamPublics,
		SymRecordStream:     StreamSymbolRecords,
		ModuleName:          moduleName,
		ObjFileName:         objFileName,
		ModuleSymStream:     StreamModuleSyms,
		SymByteSize:         mod.SymByteSize(),
		Sections:            sections,
		SectionHeaderStream: StreamSectionHeaders,
	}

	info := &streams.PDBInfoBuilder{
		Signature: t.Identity.Signature,
		Age:       t.Identity.Age,
		GUID:      [16]byte(t.Identity.GUID),
	}
	info.AddNamedStream("/names", StreamNames)

	builder := msf.NewBuilder()
	streamData := [StreamCount][]byte{
		StreamOldDirectory:   nil,
		StreamPDB:            info.Bytes(),
		StreamTPI:            tpi.Bytes(),
		StreamDBI:            dbi.Bytes(),
		StreamIPI:            streams.NewTPIBuilder().Bytes(),
		StreamNames:          streams.NewNameTable().Bytes(),
		StreamModuleSyms:     mod.Bytes(),
		StreamGlobals:        streams.BuildGlobalsStream(symRecords),
		StreamPublics:        streams.BuildPublicsStream(symRecords),
		StreamSymbolRecords:  symRecords.Data,
		StreamSectionHeaders: streams.BuildSectionHeadersStream(sections),
	}
	for _, data := range streamData {
		if _, err := builder.AddStream(data); err != nil {
			return nil, err
		}
	}

	out, err := builder.Finalize()
	if err != nil {
		return nil, err
	}
	res.Data = out
	return res, nil
}

// validate checks every function for representability.
func validate(funcs []FunctionSymbol) error {
	for i := range funcs {
		fn := &funcs[i]
		if fn.Name == "" {
			return &InvalidSymbolError{Index: i, Reason: "empty name"}
		}
		if len(fn.Name) > codeview.MaxSymbolNameLength {
			return &InvalidSymbolError{
				Index: i,
				Reason: fmt.Sprintf("name length %d exceeds limit %d",
					len(fn.Name), codeview.MaxSymbolNameLength),
			}
		}
		if len(fn.Ranges) == 0 {
			return &InvalidSymbolError{Index: i, Name: fn.Name, Reason: "no address ranges"}
		}
		for j, r := range fn.Ranges {
			if r.Start >= r.End {
				return &InvalidSymbolError{
					Index: i, Name: fn.Name,
					Reason: fmt.Sprintf("range %d is empty or inverted", j),
				}
			}
			if j > 0 && r.Start < fn.Ranges[j-1].End {
				return &InvalidSymbolError{
					Index: i, Name: fn.Name,
					Reason: fmt.Sprintf("range %d overlaps or is out of order", j),
				}
			}
		}
	}
	return nil
}

// placeFunctions splits multi-range functions into `_partN` pieces and
// resolves each piece's image-relative start into a 1-based section index
// and section-relative offset. Pieces outside every section are dropped
// and reported.
func placeFunctions(t *SymbolTable, res *Result) []proc {
	var procs []proc
	for i := range t.Functions {
		fn := &t.Functions[i]
		for j, r := range fn.Ranges {
			name := fn.Name
			if j > 0 {
				name = fmt.Sprintf("%s_part%d", fn.Name, j)
			}

			seg, off, ok := resolveOffset(t.Sections, r.Start)
			if !ok {
				res.SkippedFunctions = append(res.SkippedFunctions, name)
				continue
			}
			procs = append(procs, proc{
				name:    name,
				segment: seg,
				offset:  off,
				length:  r.Length(),
			})
		}
	}
	return procs
}

// resolveOffset maps an image-relative offset to its containing section.
func resolveOffset(sections []SectionInfo, rva uint32) (segment uint16, offset uint32, ok bool) {
	for i := range sections {
		s := &sections[i]
		if rva >= s.VirtualAddress && rva-s.VirtualAddress < s.VirtualSize {
			return uint16(i + 1), rva - s.VirtualAddress, true
		}
	}
	return 0, 0, false
}
