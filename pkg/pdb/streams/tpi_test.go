package streams

import (
	"encoding/binary"
	"testing"

	"github.com/pdbforge/pdbgen/pkg/pdb/codeview"
	"github.com/stretchr/testify/require"
)

func TestTPIBuilderVoidSignature(t *testing.T) {
	b := NewTPIBuilder()
	argList := b.Add(codeview.ArgListRecord(nil))
	procType := b.Add(codeview.ProcedureRecord(codeview.T_VOID, codeview.CallNearC, 0, argList))
	require.Equal(t, uint32(0x1000), argList)
	require.Equal(t, uint32(0x1001), procType)

	data := b.Bytes()
	require.Equal(t, TPIHeaderSize+24, len(data))

	wantRecords := []byte{
		// LF_ARGLIST, zero arguments
		0x06, 0x00, 0x01, 0x12, 0x00, 0x00, 0x00, 0x00,
		// LF_PROCEDURE: void return, NearC, no params, arglist 0x1000
		0x0E, 0x00, 0x08, 0x10, 0x03, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00,
	}
	require.Equal(t, wantRecords, data[TPIHeaderSize:])
}

func TestTPIBuilderHeader(t *testing.T) {
	b := NewTPIBuilder()
	b.Add(codeview.ArgListRecord(nil))
	b.Add(codeview.ProcedureRecord(codeview.T_VOID, codeview.CallNearC, 0, 0x1000))

	parsed, err := ReadTPIStream(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(TPIStreamVersionV80), parsed.Header.Version)
	require.Equal(t, uint32(TPIHeaderSize), parsed.Header.HeaderSize)
	require.Equal(t, uint32(0x1000), parsed.Header.TypeIndexBegin)
	require.Equal(t, uint32(0x1002), parsed.Header.TypeIndexEnd)
	require.Equal(t, uint32(24), parsed.Header.TypeRecordBytes)
	require.Equal(t, uint16(0xFFFF), parsed.Header.HashStreamIndex)
	require.Equal(t, uint16(0xFFFF), parsed.Header.HashAuxStreamIndex)
	require.Equal(t, uint32(4), parsed.Header.HashKeySize)
	require.Equal(t, uint32(0x3FFFF), parsed.Header.NumHashBuckets)

	require.Equal(t, 2, parsed.NumTypes())
	require.Equal(t, uint16(codeview.LF_ARGLIST), parsed.GetType(0x1000).Kind)
	require.Equal(t, uint16(codeview.LF_PROCEDURE), parsed.GetType(0x1001).Kind)

	// The procedure record references the arg list.
	proc := parsed.GetType(0x1001)
	require.Equal(t, uint32(0x1000), binary.LittleEndian.Uint32(proc.Data[8:]))
}

func TestTPIBuilderEmpty(t *testing.T) {
	data := NewTPIBuilder().Bytes()
	require.Equal(t, TPIHeaderSize, len(data))

	parsed, err := ReadTPIStream(data)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1000), parsed.Header.TypeIndexEnd)
	require.Equal(t, 0, parsed.NumTypes())
}
