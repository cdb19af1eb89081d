package pdb

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGUIDByteOrder(t *testing.T) {
	u, err := uuid.Parse("01020304-0506-0708-090a-0b0c0d0e0f10")
	require.NoError(t, err)

	g := GUIDFromUUID(u)
	// First three fields little-endian, trailing bytes verbatim.
	want := GUID{
		0x04, 0x03, 0x02, 0x01,
		0x06, 0x05,
		0x08, 0x07,
		0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10,
	}
	require.Equal(t, want, g)
	require.Equal(t, u, g.UUID())
	require.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", g.String())
}

func TestGUIDJSON(t *testing.T) {
	u := uuid.MustParse("a1b2c3d4-e5f6-0718-293a-4b5c6d7e8f90")
	in := GUIDFromUUID(u)

	data, err := json.Marshal(in)
	require.NoError(t, err)
	require.Equal(t, `"a1b2c3d4-e5f6-0718-293a-4b5c6d7e8f90"`, string(data))

	var out GUID
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)

	require.Error(t, json.Unmarshal([]byte(`"not-a-guid"`), &out))
}
