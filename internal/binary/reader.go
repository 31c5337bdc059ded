// Package binary provides bounds-checked readers for the fixed-layout
// headers found in audio, picture and OLE payloads.
//
// Every out-of-range read returns *types.OutOfBoundsError, which the driver
// records as malformed input.
package binary

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/types"
)

// SafeReader wraps io.ReaderAt with bounds checking and helpful error messages.
type SafeReader struct {
	r    io.ReaderAt
	name string
	size int64
}

// NewSafeReader creates a new SafeReader. name identifies the stream in
// errors, typically the resource name or the format.
func NewSafeReader(r io.ReaderAt, size int64, name string) *SafeReader {
	return &SafeReader{
		r:    r,
		size: size,
		name: name,
	}
}

// NewBytesReader creates a SafeReader over an in-memory payload.
func NewBytesReader(data []byte, name string) *SafeReader {
	return NewSafeReader(bytesReaderAt(data), int64(len(data)), name)
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Name returns the stream name used in errors.
func (sr *SafeReader) Name() string {
	return sr.name
}

// Size returns the readable size.
func (sr *SafeReader) Size() int64 {
	return sr.size
}

// ReadAt reads bytes at the given offset with context for error messages.
func (sr *SafeReader) ReadAt(b []byte, off int64, what string) error {
	if off < 0 || off >= sr.size || off+int64(len(b)) > sr.size {
		if len(b) == 0 && off == sr.size {
			return nil
		}
		return &types.OutOfBoundsError{
			Path:   sr.name,
			What:   what,
			Offset: off,
			Length: len(b),
			Size:   sr.size,
		}
	}

	n, err := sr.r.ReadAt(b, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "%s: read %s at offset %d", sr.name, what, off)
	}
	if n < len(b) {
		return &types.MalformedInputError{
			Offset: off,
			Reason: fmt.Sprintf("%s: short read for %s: got %d bytes, expected %d", sr.name, what, n, len(b)),
		}
	}
	return nil
}

// Read reads a big-endian value of type T from the given offset.
func Read[T uint8 | uint16 | uint32 | uint64](sr *SafeReader, off int64, what string) (T, error) {
	return ReadEndian[T](sr, off, what, BigEndian)
}

func sizeOf[T uint8 | uint16 | uint32 | uint64]() int {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

// Reader provides sequential reading with automatic offset tracking.
type Reader struct {
	*SafeReader
	order  Endianness
	offset int64
}

// NewReader creates a big-endian Reader starting at the given offset.
func NewReader(sr *SafeReader, offset int64) *Reader {
	return &Reader{SafeReader: sr, offset: offset, order: BigEndian}
}

// NewReaderLE creates a little-endian Reader starting at the given offset.
func NewReaderLE(sr *SafeReader, offset int64) *Reader {
	return &Reader{SafeReader: sr, offset: offset, order: LittleEndian}
}

// ReadValue reads a numeric value in the reader's byte order and advances
// the offset.
func ReadValue[T uint8 | uint16 | uint32 | uint64](r *Reader, what string) (T, error) {
	val, err := ReadEndian[T](r.SafeReader, r.offset, what, r.order)
	if err != nil {
		var zero T
		return zero, err
	}
	r.offset += int64(sizeOf[T]())
	return val, nil
}

// ReadBytes reads n bytes and advances the offset.
func (r *Reader) ReadBytes(n int64, what string) ([]byte, error) {
	if n < 0 || n > r.size-r.offset {
		return nil, &types.OutOfBoundsError{
			Path:   r.name,
			What:   what,
			Offset: r.offset,
			Length: int(n),
			Size:   r.size,
		}
	}
	buf := make([]byte, n)
	if err := r.SafeReader.ReadAt(buf, r.offset, what); err != nil {
		return nil, err
	}
	r.offset += n
	return buf, nil
}

// ReadString reads a string of the given length and advances the offset.
func (r *Reader) ReadString(length int, what string) (string, error) {
	buf, err := r.ReadBytes(int64(length), what)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadCString reads a NUL-terminated string and advances past the NUL.
func (r *Reader) ReadCString(what string) (string, error) {
	var out []byte
	b := make([]byte, 1)
	for {
		if err := r.SafeReader.ReadAt(b, r.offset, what); err != nil {
			return "", err
		}
		r.offset++
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
}

// Skip advances the offset by n bytes.
func (r *Reader) Skip(n int64) {
	r.offset += n
}

// Offset returns the current offset.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Remaining returns the number of bytes left after the current offset.
func (r *Reader) Remaining() int64 {
	if r.offset >= r.size {
		return 0
	}
	return r.size - r.offset
}

// ChainReader allows chaining multiple reads with deferred error checking.
// This avoids repetitive "if err != nil" checks.
type ChainReader struct {
	*Reader
	err error
}

// NewChainReader creates a new ChainReader.
func NewChainReader(r *Reader) *ChainReader {
	return &ChainReader{Reader: r}
}

// ReadChained reads a value with deferred error checking.
// If a previous read failed, returns zero value without attempting read.
func ReadChained[T uint8 | uint16 | uint32 | uint64](cr *ChainReader, what string) T {
	if cr.err != nil {
		var zero T
		return zero
	}
	val, err := ReadValue[T](cr.Reader, what)
	if err != nil {
		cr.err = err
	}
	return val
}

// String reads a string, accumulating any error.
func (cr *ChainReader) String(length int, what string) string {
	if cr.err != nil {
		return ""
	}
	val, err := cr.Reader.ReadString(length, what)
	if err != nil {
		cr.err = err
		return ""
	}
	return val
}

// CString reads a NUL-terminated string, accumulating any error.
func (cr *ChainReader) CString(what string) string {
	if cr.err != nil {
		return ""
	}
	val, err := cr.Reader.ReadCString(what)
	if err != nil {
		cr.err = err
		return ""
	}
	return val
}

// Bytes reads n bytes, accumulating any error.
func (cr *ChainReader) Bytes(n int64, what string) []byte {
	if cr.err != nil {
		return nil
	}
	val, err := cr.Reader.ReadBytes(n, what)
	if err != nil {
		cr.err = err
		return nil
	}
	return val
}

// Error returns the accumulated error, if any.
func (cr *ChainReader) Error() error {
	return cr.err
}
