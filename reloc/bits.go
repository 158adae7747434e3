package reloc

import "encoding/binary"

// fitsSigned reports whether v fits in a signed field of the given width
// in bytes (1, 2, or 4). A value exactly at the minimum or maximum for
// that width still fits.
func fitsSigned(v int64, widthBytes int) bool {
	switch widthBytes {
	case 1:
		return v >= -128 && v <= 127
	case 2:
		return v >= -32768 && v <= 32767
	case 4:
		return v >= -2147483648 && v <= 2147483647
	default:
		return false
	}
}

// writeSigned writes v as a little-endian signed integer of widthBytes
// bytes at dst[offset:offset+widthBytes].
func writeSigned(dst []byte, offset int, widthBytes int, v int64) {
	switch widthBytes {
	case 1:
		dst[offset] = byte(int8(v))
	case 2:
		binary.LittleEndian.PutUint16(dst[offset:], uint16(int16(v)))
	case 4:
		binary.LittleEndian.PutUint32(dst[offset:], uint32(int32(v)))
	}
}
