package consensus

import "encoding/binary"

// EncodeCompactSize writes n as a Bitcoin-style variable-length size
// prefix: values below 0xfd encode as a single byte, larger values
// use an 0xfd/0xfe/0xff marker followed by a fixed-width little-endian
// integer.
func EncodeCompactSize(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
		return b
	case n <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], n)
		return b
	}
}

// DecodeCompactSize reads a CompactSize prefix from b, returning the
// decoded value and the number of bytes consumed.
func DecodeCompactSize(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, serializationErr(SerializationTruncated, "compactsize: empty")
	}
	switch marker := b[0]; {
	case marker < 0xfd:
		return uint64(marker), 1, nil
	case marker == 0xfd:
		if len(b) < 3 {
			return 0, 0, serializationErr(SerializationTruncated, "compactsize: truncated u16")
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, nil
	case marker == 0xfe:
		if len(b) < 5 {
			return 0, 0, serializationErr(SerializationTruncated, "compactsize: truncated u32")
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), 5, nil
	default:
		if len(b) < 9 {
			return 0, 0, serializationErr(SerializationTruncated, "compactsize: truncated u64")
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, nil
	}
}
