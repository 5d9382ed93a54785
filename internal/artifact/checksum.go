package artifact

import "hash/fnv"

// Checksum returns the FNV-1a 64-bit hash of the concatenated inputs.
func Checksum(parts ...[]byte) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum64()
}

// UnitFraction maps a checksum onto [0, 1) using bits starting at shift.
func UnitFraction(sum uint64, shift uint) float64 {
	return float64((sum>>shift)&0xffff) / 65536.0
}
