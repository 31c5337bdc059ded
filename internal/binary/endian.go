package binary

import (
	"encoding/binary"
	"math"
)

// Endianness represents byte order for multi-byte values.
type Endianness int

const (
	// BigEndian is used by AIFF, AU, FLAC metadata blocks, PICTURE blocks and
	// ID3v2 frames.
	BigEndian Endianness = iota

	// LittleEndian is used by RIFF/WAVE, Ogg pages, Vorbis comments and OLE
	// streams.
	LittleEndian
)

// ByteOrder returns the encoding/binary order for e.
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// ReadLE reads a numeric value of type T at the given offset using
// little-endian byte order.
//
//	length, err := binary.ReadLE[uint32](sr, offset, "vorbis comment length")
func ReadLE[T uint8 | uint16 | uint32 | uint64](sr *SafeReader, off int64, what string) (T, error) {
	return ReadEndian[T](sr, off, what, LittleEndian)
}

// ReadBE reads a numeric value of type T at the given offset using
// big-endian byte order.
func ReadBE[T uint8 | uint16 | uint32 | uint64](sr *SafeReader, off int64, what string) (T, error) {
	return ReadEndian[T](sr, off, what, BigEndian)
}

// ReadEndian reads a numeric value of type T at the given offset with the
// specified byte order.
func ReadEndian[T uint8 | uint16 | uint32 | uint64](sr *SafeReader, off int64, what string, endian Endianness) (T, error) {
	var zero T
	buf := make([]byte, sizeOf[T]())
	if err := sr.ReadAt(buf, off, what); err != nil {
		return zero, err
	}
	return Decode[T](buf, endian), nil
}

// Decode converts buf, which must hold exactly sizeof(T) bytes, to T.
func Decode[T uint8 | uint16 | uint32 | uint64](buf []byte, endian Endianness) T {
	order := endian.ByteOrder()
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(buf[0])
	case uint16:
		return T(order.Uint16(buf))
	case uint32:
		return T(order.Uint32(buf))
	default:
		return T(order.Uint64(buf))
	}
}

// Extended decodes an IEEE 754 80-bit extended precision float, as used
// for the AIFF sample rate. buf must hold 10 bytes.
func Extended(buf []byte) float64 {
	if len(buf) < 10 {
		return 0
	}
	sign := 1.0
	if buf[0]&0x80 != 0 {
		sign = -1
	}
	exponent := int(binary.BigEndian.Uint16(buf[0:2]) & 0x7FFF)
	mantissa := binary.BigEndian.Uint64(buf[2:10])
	if exponent == 0 && mantissa == 0 {
		return 0
	}
	if exponent == 0x7FFF {
		return math.Inf(int(sign))
	}
	return sign * float64(mantissa) * math.Pow(2, float64(exponent-16383-63))
}
