package streams

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPDBInfoRoundTrip(t *testing.T) {
	b := &PDBInfoBuilder{
		Signature: 0x5F0C76B4,
		Age:       3,
	}
	for i := range b.GUID {
		b.GUID[i] = byte(i + 1)
	}
	b.AddNamedStream("/names", 5)

	data := b.Bytes()
	require.Equal(t, uint32(PDBStreamVersionVC70), binary.LittleEndian.Uint32(data))
	require.Equal(t, uint32(PDBFeatureVC140), binary.LittleEndian.Uint32(data[len(data)-4:]))

	info, err := ReadPDBInfo(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, uint32(PDBStreamVersionVC70), info.Version)
	require.Equal(t, uint32(0x5F0C76B4), info.Signature)
	require.Equal(t, uint32(3), info.Age)
	require.Equal(t, b.GUID, info.GUID)
	require.Equal(t, map[string]uint32{"/names": 5}, info.NamedStreams)
}

func TestPDBInfoNamedStreamMapGrowth(t *testing.T) {
	b := &PDBInfoBuilder{}
	names := map[string]uint32{
		"/names":            5,
		"/LinkInfo":         11,
		"/src/headerblock":  12,
		"/TMCache":          13,
		"sourcelink":        14,
		"/UDTSRCLINEUNDONE": 15,
	}
	for name, idx := range names {
		b.AddNamedStream(name, idx)
	}

	info, err := ReadPDBInfo(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	require.Equal(t, names, info.NamedStreams)
}
