package pipeline

import "encoding/binary"

// FNV-1a 64-bit parameters.
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// ConnKey derives the 64-bit identifier of a directional flow from its
// 4-tuple. FNV-1a over the packed tuple keeps every field significant;
// the swapped tuple yields an independent reverse key.
func ConnKey(srcIP, dstIP uint32, srcPort, dstPort uint16) uint64 {
	var tuple [12]byte
	binary.BigEndian.PutUint32(tuple[0:4], srcIP)
	binary.BigEndian.PutUint32(tuple[4:8], dstIP)
	binary.BigEndian.PutUint16(tuple[8:10], srcPort)
	binary.BigEndian.PutUint16(tuple[10:12], dstPort)

	h := uint64(fnvOffset64)
	for _, b := range tuple {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	return h
}

// ReverseConnKey is the key of the opposite direction of the same flow.
func ReverseConnKey(srcIP, dstIP uint32, srcPort, dstPort uint16) uint64 {
	return ConnKey(dstIP, srcIP, dstPort, srcPort)
}
