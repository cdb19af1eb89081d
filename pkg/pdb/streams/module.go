package streams

import (
	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
)

// ModuleStreamBuilder assembles a module symbol stream: the C13 signature
// word followed by S_GPROC32/S_END pairs. The trailing global-refs word is
// appended at serialization time and is not part of SymByteSize.
type ModuleStreamBuilder struct {
	w *buf.Writer
}

// NewModuleStreamBuilder creates a builder with the signature word
// already written.
func NewModuleStreamBuilder() *ModuleStreamBuilder {
	w := buf.NewWriter(256)
	w.U32(codeview.CVSignatureC13)
	return &ModuleStreamBuilder{w: w}
}

// AddProcedure appends an S_GPROC32 record and its S_END terminator,
// back-patching the procedure's scope end pointer. It returns the byte
// offset of the procedure record within the stream, which is what
// S_PROCREF records in the globals table point at.
func (b *ModuleStreamBuilder) AddProcedure(proc *codeview.ProcSym) uint32 {
	start := proc.Encode(b.w)
	end := codeview.EncodeEnd(b.w)
	b.w.SetU32(start+codeview.ProcSymEndFieldOffset, uint32(end))
	return uint32(start)
}

// SymByteSize returns the size of the symbol data including the signature
// word, as recorded in the module's DBI entry.
func (b *ModuleStreamBuilder) SymByteSize() uint32 {
	return uint32(b.w.Len())
}

// Bytes serializes the stream, appending the empty global-refs substream.
func (b *ModuleStreamBuilder) Bytes() []byte {
	out := make([]byte, 0, b.w.Len()+4)
	out = append(out, b.w.Data()...)
	out = append(out, 0, 0, 0, 0) // GlobalRefsSize = 0
	return out
}
