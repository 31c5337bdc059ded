package audio

import (
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

// maxChunkBody bounds the header chunks read into memory. Larger chunks are
// skipped.
const maxChunkBody = 1 << 20

// chunkReader walks the chunks of a RIFF or IFF stream sequentially. Chunk
// bodies are padded to an even length.
type chunkReader struct {
	r     io.Reader
	order binary.Endianness
	off   int64
}

func newChunkReader(r io.Reader, order binary.Endianness, off int64) *chunkReader {
	return &chunkReader{r: r, order: order, off: off}
}

// next reads the next chunk header.
func (c *chunkReader) next() (string, uint32, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return "", 0, err
	}
	c.off += 8
	return string(hdr[:4]), binary.Decode[uint32](hdr[4:], c.order), nil
}

// body reads a chunk body and its pad byte.
func (c *chunkReader) body(size uint32) ([]byte, error) {
	if size > maxChunkBody {
		return nil, errors.Errorf("chunk of %d bytes exceeds %d", size, maxChunkBody)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	c.off += int64(size)
	if size%2 == 1 {
		if err := c.discard(1); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return buf, nil
}

// skip discards a chunk body and its pad byte.
func (c *chunkReader) skip(size uint32) error {
	n := int64(size) + int64(size%2)
	return c.discard(n)
}

func (c *chunkReader) discard(n int64) error {
	got, err := io.CopyN(io.Discard, c.r, n)
	c.off += got
	if err != nil {
		return err
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
