package ogg

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

// Page header flags.
const (
	flagContinued = 0x01
	flagBOS       = 0x02
	flagEOS       = 0x04
)

const (
	pageHeaderLen  = 27
	maxHeaderPages = 1024     // pages read while collecting the header packets
	maxPacketSize  = 16 << 20 // largest header packet accepted
	tailWindow     = 65536    // bytes searched for the final page
)

// Page represents an Ogg page.
//
// An Ogg page is the fundamental unit of the Ogg container format. Its
// payload is a run of lacing segments; a segment shorter than 255 bytes
// ends a packet.
type Page struct {
	HeaderType byte   // Bit flags: 0x01=continued, 0x02=BOS, 0x04=EOS
	Granule    int64  // Codec-specific position, -1 when no packet ends here
	Serial     uint32 // Logical bitstream identifier
	Sequence   uint32 // Page sequence number
	Segments   []byte // Lacing values
	Data       []byte // Page payload
	Size       int64  // Header plus payload length
}

// readPage reads an Ogg page at the given offset.
func readPage(sr *binary.SafeReader, off int64) (*Page, error) {
	magic := make([]byte, 4)
	if err := sr.ReadAt(magic, off, "Ogg capture pattern"); err != nil {
		return nil, err
	}
	if string(magic) != "OggS" {
		return nil, errors.Errorf("no Ogg page at offset %d", off)
	}

	version, err := binary.Read[uint8](sr, off+4, "version")
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, errors.Errorf("unsupported Ogg version %d", version)
	}
	headerType, err := binary.Read[uint8](sr, off+5, "header type")
	if err != nil {
		return nil, err
	}
	granule, err := binary.ReadLE[uint64](sr, off+6, "granule position")
	if err != nil {
		return nil, err
	}
	serial, err := binary.ReadLE[uint32](sr, off+14, "serial number")
	if err != nil {
		return nil, err
	}
	sequence, err := binary.ReadLE[uint32](sr, off+18, "sequence number")
	if err != nil {
		return nil, err
	}
	count, err := binary.Read[uint8](sr, off+26, "segment count")
	if err != nil {
		return nil, err
	}

	segments := make([]byte, count)
	if err := sr.ReadAt(segments, off+pageHeaderLen, "segment table"); err != nil {
		return nil, err
	}
	size := 0
	for _, seg := range segments {
		size += int(seg)
	}
	data := make([]byte, size)
	dataOff := off + pageHeaderLen + int64(count)
	if err := sr.ReadAt(data, dataOff, "page data"); err != nil {
		return nil, err
	}

	return &Page{
		HeaderType: headerType,
		Granule:    int64(granule),
		Serial:     serial,
		Sequence:   sequence,
		Segments:   segments,
		Data:       data,
		Size:       pageHeaderLen + int64(count) + int64(size),
	}, nil
}

// packetReader reassembles the packets of one logical stream from the
// pages following off. Pages of other streams are skipped.
type packetReader struct {
	sr      *binary.SafeReader
	off     int64
	serial  uint32
	pages   int
	pending []byte
	packets [][]byte
}

func newPacketReader(sr *binary.SafeReader, first *Page) *packetReader {
	pr := &packetReader{sr: sr, off: first.Size, serial: first.Serial, pages: 1}
	pr.add(first)
	return pr
}

// next returns the next complete packet.
func (pr *packetReader) next() ([]byte, error) {
	for len(pr.packets) == 0 {
		if pr.pages >= maxHeaderPages {
			return nil, errors.Errorf("header packets span more than %d pages", maxHeaderPages)
		}
		if len(pr.pending) > maxPacketSize {
			return nil, errors.Errorf("header packet exceeds %d bytes", maxPacketSize)
		}
		p, err := readPage(pr.sr, pr.off)
		if err != nil {
			return nil, err
		}
		pr.off += p.Size
		pr.pages++
		if p.Serial == pr.serial {
			pr.add(p)
		}
	}
	pkt := pr.packets[0]
	pr.packets = pr.packets[1:]
	return pkt, nil
}

func (pr *packetReader) add(p *Page) {
	if p.HeaderType&flagContinued == 0 {
		// An unfinished packet followed by a fresh page is lost.
		pr.pending = nil
	}
	pos := 0
	for _, seg := range p.Segments {
		pr.pending = append(pr.pending, p.Data[pos:pos+int(seg)]...)
		pos += int(seg)
		if seg < 255 {
			pr.packets = append(pr.packets, pr.pending)
			pr.pending = nil
		}
	}
}

// lastGranule searches backwards from the end of the stream for the last
// page of the given logical stream that carries a granule position.
func lastGranule(sr *binary.SafeReader, serial uint32) (int64, error) {
	start := max(sr.Size()-tailWindow, 0)
	buf := make([]byte, sr.Size()-start)
	if err := sr.ReadAt(buf, start, "stream tail"); err != nil {
		return 0, err
	}

	capture := []byte("OggS")
	for i := bytes.LastIndex(buf, capture); i >= 0; i = bytes.LastIndex(buf[:i], capture) {
		if i+pageHeaderLen > len(buf) {
			continue
		}
		hdr := buf[i : i+pageHeaderLen]
		if binary.Decode[uint32](hdr[14:18], binary.LittleEndian) != serial {
			continue
		}
		if g := int64(binary.Decode[uint64](hdr[6:14], binary.LittleEndian)); g >= 0 {
			return g, nil
		}
	}
	return 0, errors.New("no final Ogg page found")
}
