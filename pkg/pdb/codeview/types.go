package codeview

import (
	"github.com/pdbforge/pdbgen/pkg/pdb/buf"
)

// Type leaf constants (LF_* values) for the records this package emits.
const (
	LF_PROCEDURE = 0x1008
	LF_ARGLIST   = 0x1201
)

// Built-in type indices (type indices below the first user index are
// predefined by the format).
const (
	T_NOTYPE = 0x0000
	T_VOID   = 0x0003
)

// Calling conventions (CV_call_e).
const (
	CallNearC = 0x00
)

// ArgListRecord builds a framed LF_ARGLIST type record describing the
// given argument type indices.
func ArgListRecord(args []uint32) []byte {
	w := buf.NewWriter(8 + 4*len(args))
	start := beginTypeRecord(w, LF_ARGLIST)
	w.U32(uint32(len(args)))
	for _, a := range args {
		w.U32(a)
	}
	endTypeRecord(w, start)
	return w.Data()
}

// ProcedureRecord builds a framed LF_PROCEDURE type record.
func ProcedureRecord(returnType uint32, callConv uint8, paramCount uint16, argList uint32) []byte {
	w := buf.NewWriter(16)
	start := beginTypeRecord(w, LF_PROCEDURE)
	w.U32(returnType)
	w.U8(callConv)
	w.U8(0) // function attributes
	w.U16(paramCount)
	w.U32(argList)
	endTypeRecord(w, start)
	return w.Data()
}

// beginTypeRecord reserves the record length field and writes the leaf
// kind, returning the record start offset for endTypeRecord.
func beginTypeRecord(w *buf.Writer, kind uint16) int {
	start := w.Len()
	w.U16(0) // length, patched by endTypeRecord
	w.U16(kind)
	return start
}

// endTypeRecord pads the record to 4 bytes with LF_PAD bytes and patches
// the length field. The length excludes the length field itself.
func endTypeRecord(w *buf.Writer, start int) {
	for (w.Len()-start)%4 != 0 {
		pad := 4 - (w.Len()-start)%4
		w.U8(0xF0 | uint8(pad))
	}
	w.SetU16(start, uint16(w.Len()-start-2))
}
