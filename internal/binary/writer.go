package binary

import (
	"io"
	"math"
)

// SafeWriter wraps io.Writer with position tracking. It builds the binary
// payloads the OLE translator re-emits and the fixtures the extractor tests
// feed through the pipeline.
type SafeWriter struct {
	w      io.Writer
	offset int64
}

// NewSafeWriter creates a new SafeWriter.
func NewSafeWriter(w io.Writer) *SafeWriter {
	return &SafeWriter{w: w}
}

// Offset returns the current position (number of bytes written).
func (sw *SafeWriter) Offset() int64 {
	return sw.offset
}

// WriteBytes writes raw bytes to the underlying writer.
func (sw *SafeWriter) WriteBytes(b []byte) error {
	n, err := sw.w.Write(b)
	sw.offset += int64(n)
	return err
}

// WriteString writes a string as bytes to the underlying writer.
func (sw *SafeWriter) WriteString(s string) error {
	return sw.WriteBytes([]byte(s))
}

// WriteCString writes s followed by a NUL byte.
func (sw *SafeWriter) WriteCString(s string) error {
	if err := sw.WriteString(s); err != nil {
		return err
	}
	return sw.WriteBytes([]byte{0})
}

// Write writes a value of type T in big-endian byte order.
func Write[T uint8 | uint16 | uint32 | uint64](sw *SafeWriter, val T) error {
	return WriteEndian(sw, val, BigEndian)
}

// WriteLE writes a value of type T in little-endian byte order.
func WriteLE[T uint8 | uint16 | uint32 | uint64](sw *SafeWriter, val T) error {
	return WriteEndian(sw, val, LittleEndian)
}

// WriteEndian writes a value of type T in the given byte order.
func WriteEndian[T uint8 | uint16 | uint32 | uint64](sw *SafeWriter, val T, endian Endianness) error {
	order := endian.ByteOrder()
	buf := make([]byte, sizeOf[T]())
	switch len(buf) {
	case 1:
		buf[0] = byte(val)
	case 2:
		order.PutUint16(buf, uint16(val))
	case 4:
		order.PutUint32(buf, uint32(val))
	default:
		order.PutUint64(buf, uint64(val))
	}
	return sw.WriteBytes(buf)
}

// WriteExtended writes v as an IEEE 754 80-bit extended float. Only
// positive finite values are supported.
func WriteExtended(sw *SafeWriter, v float64) error {
	buf := make([]byte, 10)
	if v > 0 && !math.IsInf(v, 0) {
		frac, exp := math.Frexp(v) // v = frac * 2^exp, frac in [0.5, 1)
		e := uint16(exp - 1 + 16383)
		m := uint64(frac * (1 << 64))
		buf[0] = byte(e >> 8)
		buf[1] = byte(e)
		for i := 0; i < 8; i++ {
			buf[2+i] = byte(m >> (56 - 8*i))
		}
	}
	return sw.WriteBytes(buf)
}
