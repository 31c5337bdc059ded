package types

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// PeekSize is the maximum look-ahead a Stream offers without buffering.
const PeekSize = 64 << 10

// Stream is a single-pass byte stream with bounded look-ahead.
//
// Peek never consumes input. Buffer reads the remainder into memory and
// rewinds the stream onto that copy, so callers that need random access can
// do so without losing replayability.
type Stream struct {
	br   *bufio.Reader
	buf  []byte
	read int64
}

// NewStream wraps r. If r is already a *Stream it is returned unchanged.
func NewStream(r io.Reader) *Stream {
	if s, ok := r.(*Stream); ok {
		return s
	}
	return &Stream{br: bufio.NewReaderSize(r, PeekSize)}
}

// NewBufferedStream wraps an in-memory payload.
func NewBufferedStream(data []byte) *Stream {
	return &Stream{
		br:  bufio.NewReaderSize(bytes.NewReader(data), PeekSize),
		buf: data,
	}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	s.read += int64(n)
	return n, err
}

// Peek returns up to n bytes without consuming them. A short result with
// io.EOF means the stream holds fewer than n bytes.
func (s *Stream) Peek(n int) ([]byte, error) {
	if n > PeekSize {
		n = PeekSize
	}
	b, err := s.br.Peek(n)
	if errors.Is(err, bufio.ErrBufferFull) {
		err = nil
	}
	return b, err
}

// Buffer reads the rest of the stream into memory and rewinds onto it.
// Subsequent reads replay the same bytes. On a read error the bytes read so
// far are still replayable and the error is returned.
func (s *Stream) Buffer() ([]byte, error) {
	if s.buf != nil && s.read == 0 {
		return s.buf, nil
	}
	data, err := io.ReadAll(s.br)
	s.buf = data
	s.read = 0
	s.br = bufio.NewReaderSize(bytes.NewReader(data), PeekSize)
	if err != nil {
		return data, err
	}
	return data, nil
}

// Rewind restarts a buffered stream from the first buffered byte.
func (s *Stream) Rewind() error {
	if s.buf == nil {
		return errors.New("stream is not buffered")
	}
	s.br.Reset(bytes.NewReader(s.buf))
	s.read = 0
	return nil
}

// ReaderAt buffers the stream and returns a random-access view of it.
func (s *Stream) ReaderAt() (*bytes.Reader, error) {
	data, err := s.Buffer()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Consumed returns the number of bytes handed out by Read since the stream
// was created or last buffered.
func (s *Stream) Consumed() int64 {
	return s.read
}
