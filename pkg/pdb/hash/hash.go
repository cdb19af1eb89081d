// Package hash implements the legacy hash functions mandated by the PDB
// format for its symbol and name-table indices. The algorithms are frozen
// by the format specification and must match bit-for-bit, otherwise
// consuming debuggers fail to resolve symbols.
package hash

import "encoding/binary"

// IPHRBuckets is the fixed bucket count of the global/public symbol hash
// tables (IPHR_HASH in Microsoft's sources).
const IPHRBuckets = 4096

// StringV1 computes the V1 PDB string hash (Hasher::lhashPbCb). It XORs
// the string as little-endian 4-byte windows, folds the 2-byte and 1-byte
// tail, then mixes with a case-folding mask. The OR with 0x20202020 makes
// the hash ASCII case-insensitive. Used by the symbol hash streams, the
// /names table (hash version 1) and the named stream map.
func StringV1(s string) uint32 {
	var result uint32

	i := 0
	for ; i+4 <= len(s); i += 4 {
		result ^= binary.LittleEndian.Uint32([]byte(s[i : i+4]))
	}
	if i+2 <= len(s) {
		result ^= uint32(binary.LittleEndian.Uint16([]byte(s[i : i+2])))
		i += 2
	}
	if i < len(s) {
		result ^= uint32(s[i])
	}

	const toLowerMask = 0x20202020
	result |= toLowerMask
	result ^= result >> 11
	return result ^ (result >> 16)
}

// StringV2 computes the V2 PDB string hash (HasherV2::HashULONG), a
// one-at-a-time mix over 4-byte windows with an LCG finalizer. Used by
// string tables declaring hash version 2.
func StringV2(s string) uint32 {
	hash := uint32(0xb170a1bf)

	i := 0
	for ; i+4 <= len(s); i += 4 {
		hash += binary.LittleEndian.Uint32([]byte(s[i : i+4]))
		hash += hash << 10
		hash ^= hash >> 6
	}
	for ; i < len(s); i++ {
		hash += uint32(s[i])
		hash += hash << 10
		hash ^= hash >> 6
	}

	return hash*1664525 + 1013904223
}

// BucketV1 assigns a name to a bucket using the V1 hash. The modulo is
// unsigned; the format's bucket counts are always nonzero.
func BucketV1(s string, numBuckets uint32) uint32 {
	return StringV1(s) % numBuckets
}
