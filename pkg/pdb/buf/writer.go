// Package buf provides an append-only little-endian byte writer used to
// serialize the fixed-layout structures of the PDB file format.
package buf

import "encoding/binary"

// Writer accumulates bytes in memory. All multi-byte writes are
// little-endian, matching the PDB on-disk format. Writes never fail;
// misuse (e.g. patching past the end) is a programming error and panics.
type Writer struct {
	data []byte
}

// NewWriter creates a Writer with the given initial capacity hint.
func NewWriter(capacity int) *Writer {
	return &Writer{data: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.data)
}

// Data returns the accumulated bytes. The slice aliases the writer's
// internal buffer and must not be retained across further writes.
func (w *Writer) Data() []byte {
	return w.data
}

// U8 appends a single byte.
func (w *Writer) U8(v uint8) {
	w.data = append(w.data, v)
}

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) {
	w.data = binary.LittleEndian.AppendUint16(w.data, v)
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) {
	w.data = binary.LittleEndian.AppendUint32(w.data, v)
}

// I32 appends a little-endian int32.
func (w *Writer) I32(v int32) {
	w.data = binary.LittleEndian.AppendUint32(w.data, uint32(v))
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	w.data = binary.LittleEndian.AppendUint64(w.data, v)
}

// Bytes appends a raw byte slice.
func (w *Writer) Bytes(p []byte) {
	w.data = append(w.data, p...)
}

// CString appends s followed by a NUL terminator.
func (w *Writer) CString(s string) {
	w.data = append(w.data, s...)
	w.data = append(w.data, 0)
}

// AlignTo pads with the given byte until the length is a multiple of n.
// It is a no-op if the writer is already aligned.
func (w *Writer) AlignTo(n int, pad byte) {
	for len(w.data)%n != 0 {
		w.data = append(w.data, pad)
	}
}

// SetU16 overwrites a previously written uint16 at the given offset.
// Used to back-patch record length fields.
func (w *Writer) SetU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(w.data[off:off+2], v)
}

// SetU32 overwrites a previously written uint32 at the given offset.
// Used to back-patch forward references such as scope end pointers.
func (w *Writer) SetU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.data[off:off+4], v)
}
