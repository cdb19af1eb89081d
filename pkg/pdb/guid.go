package pdb

import "github.com/google/uuid"

// GUID is a Windows GUID in its on-disk PDB form: the first three fields
// little-endian, the trailing eight bytes in order. This mixed-endian
// layout is what the PDB info stream stores, as opposed to the fully
// big-endian RFC 4122 form uuid.UUID uses.
type GUID [16]byte

// GUIDFromUUID converts an RFC 4122 UUID into the PDB on-disk form.
func GUIDFromUUID(u uuid.UUID) GUID {
	var g GUID
	g[0], g[1], g[2], g[3] = u[3], u[2], u[1], u[0]
	g[4], g[5] = u[5], u[4]
	g[6], g[7] = u[7], u[6]
	copy(g[8:], u[8:])
	return g
}

// UUID converts back to the RFC 4122 form.
func (g GUID) UUID() uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	copy(u[8:], g[8:])
	return u
}

// String returns the canonical xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx form.
func (g GUID) String() string {
	return g.UUID().String()
}

// MarshalText encodes the GUID as a canonical UUID string, which is how
// it appears in JSON symbol tables.
func (g GUID) MarshalText() ([]byte, error) {
	return g.UUID().MarshalText()
}

// UnmarshalText accepts any string form uuid.Parse accepts.
func (g *GUID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*g = GUIDFromUUID(u)
	return nil
}
