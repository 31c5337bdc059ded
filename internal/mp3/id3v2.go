package mp3

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

const (
	tagHeaderLen   = 10
	frameHeaderLen = 10
	maxFrameSize   = 64 << 20
)

// Tag header flags.
const (
	tagFlagUnsync   = 0x80
	tagFlagExtended = 0x40
	tagFlagFooter   = 0x10
)

// tagHeader is the fixed 10-byte ID3v2 header.
type tagHeader struct {
	Version  byte // Major version (3 or 4)
	Revision byte
	Flags    byte
	Size     int64 // Tag size excluding header and footer, synchsafe on disk
}

// Len returns the number of bytes the tag occupies in the file.
func (h tagHeader) Len() int64 {
	n := tagHeaderLen + h.Size
	if h.Version == 4 && h.Flags&tagFlagFooter != 0 {
		n += tagHeaderLen
	}
	return n
}

// frame is a single ID3v2 frame with its flags already applied.
type frame struct {
	ID   string // 4-character frame ID (e.g., "TIT2", "CHAP")
	Data []byte
}

// tag is a decoded ID3v2 tag.
type tag struct {
	header tagHeader
	frames []frame
	errs   []error // frames that were skipped
}

// parseTagHeader decodes the header at the start of buf.
func parseTagHeader(buf []byte) (tagHeader, error) {
	if len(buf) < tagHeaderLen || string(buf[:3]) != "ID3" {
		return tagHeader{}, errors.New("missing ID3 header")
	}
	h := tagHeader{Version: buf[3], Revision: buf[4], Flags: buf[5]}
	size, ok := decodeSynchsafe(buf[6:10])
	if !ok {
		return tagHeader{}, errors.New("tag size is not synchsafe")
	}
	h.Size = int64(size)
	if h.Version != 3 && h.Version != 4 {
		return h, errUnsupportedVersion
	}
	return h, nil
}

// errUnsupportedVersion marks a tag whose extent is known but whose frames
// cannot be read, such as ID3v2.2 with its 3-character frame IDs.
var errUnsupportedVersion = errors.New("unsupported ID3v2 version")

// readTag reads the ID3v2 tag at the start of sr. A tag whose body is
// truncated is an error; damaged frames inside it are collected in errs.
// A tag of an unsupported version is returned without frames so the audio
// after it can still be found.
func readTag(sr *binary.SafeReader) (*tag, error) {
	buf := make([]byte, tagHeaderLen)
	if err := sr.ReadAt(buf, 0, "ID3v2 header"); err != nil {
		return nil, err
	}
	h, err := parseTagHeader(buf)
	if errors.Is(err, errUnsupportedVersion) {
		return &tag{header: h, errs: []error{errors.Wrapf(err, "2.%d", h.Version)}}, nil
	}
	if err != nil {
		return nil, err
	}
	body := make([]byte, h.Size)
	if err := sr.ReadAt(body, tagHeaderLen, "ID3v2 tag body"); err != nil {
		return nil, err
	}
	// ID3v2.3 unsynchronises the whole tag; ID3v2.4 does it per frame.
	if h.Version == 3 && h.Flags&tagFlagUnsync != 0 {
		body = removeUnsync(body)
	}

	pos, err := skipExtendedHeader(h, body)
	if err != nil {
		return nil, err
	}
	t := &tag{header: h}
	t.frames, t.errs = parseFrames(body[pos:], h.Version)
	return t, nil
}

// skipExtendedHeader returns the offset of the first frame in body.
func skipExtendedHeader(h tagHeader, body []byte) (int, error) {
	if h.Flags&tagFlagExtended == 0 {
		return 0, nil
	}
	if len(body) < 4 {
		return 0, errors.New("extended header truncated")
	}
	var n int
	if h.Version == 4 {
		// ID3v2.4: synchsafe size including the size field.
		size, _ := decodeSynchsafe(body[:4])
		n = int(size)
	} else {
		// ID3v2.3: regular size excluding the size field.
		n = int(binary.Decode[uint32](body[:4], binary.BigEndian)) + 4
	}
	if n < 4 || n > len(body) {
		return 0, errors.Errorf("extended header size %d out of range", n)
	}
	return n, nil
}

// parseFrames decodes a run of frames. Padding ends the run. A frame that
// cannot be decoded is skipped; a frame header that cannot be trusted ends
// the run, since the next frame's position depends on it.
func parseFrames(data []byte, version byte) ([]frame, []error) {
	var (
		frames []frame
		errs   []error
	)
	pos := 0
	for len(data)-pos >= frameHeaderLen {
		hdr := data[pos : pos+frameHeaderLen]
		if hdr[0] == 0 {
			break
		}
		id := string(hdr[:4])
		if !validFrameID(id) {
			errs = append(errs, errors.Errorf("invalid frame ID %q at offset %d", id, pos))
			break
		}
		var size uint32
		if version == 4 {
			var ok bool
			if size, ok = decodeSynchsafe(hdr[4:8]); !ok {
				// Some writers store plain sizes in ID3v2.4 tags.
				size = binary.Decode[uint32](hdr[4:8], binary.BigEndian)
			}
		} else {
			size = binary.Decode[uint32](hdr[4:8], binary.BigEndian)
		}
		flags := binary.Decode[uint16](hdr[8:10], binary.BigEndian)
		start := pos + frameHeaderLen
		if size > maxFrameSize || start+int(size) > len(data) {
			errs = append(errs, errors.Errorf("frame %s size %d exceeds tag", id, size))
			break
		}
		pos = start + int(size)

		body, err := frameBody(data[start:pos], flags, version)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "frame %s", id))
			continue
		}
		frames = append(frames, frame{ID: id, Data: body})
	}
	return frames, errs
}

// frameBody undoes the per-frame encodings the flags announce.
func frameBody(data []byte, flags uint16, version byte) ([]byte, error) {
	var compressed, encrypted, unsync, dataLength bool
	if version == 4 {
		compressed = flags&0x0008 != 0
		encrypted = flags&0x0004 != 0
		unsync = flags&0x0002 != 0
		dataLength = flags&0x0001 != 0
	} else {
		compressed = flags&0x0080 != 0
		encrypted = flags&0x0040 != 0
		// ID3v2.3 compressed frames always carry the decompressed size.
		dataLength = compressed
	}
	if encrypted {
		return nil, errors.New("encrypted frame")
	}
	if dataLength {
		if len(data) < 4 {
			return nil, errors.New("data length indicator truncated")
		}
		data = data[4:]
	}
	if unsync {
		data = removeUnsync(data)
	}
	if compressed {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "compressed frame")
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, maxFrameSize))
		if err != nil {
			return nil, errors.Wrap(err, "compressed frame")
		}
		data = out
	}
	return data, nil
}

func validFrameID(id string) bool {
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// decodeSynchsafe decodes a synchsafe integer (7 bits per byte). ok is false
// when a byte has its high bit set.
func decodeSynchsafe(b []byte) (uint32, bool) {
	var v uint32
	for _, c := range b {
		if c&0x80 != 0 {
			return 0, false
		}
		v = v<<7 | uint32(c)
	}
	return v, true
}

// removeUnsync reverses unsynchronisation: every 0xFF 0x00 pair becomes 0xFF.
func removeUnsync(data []byte) []byte {
	if bytes.IndexByte(data, 0xFF) < 0 {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		out = append(out, data[i])
		if data[i] == 0xFF && i+1 < len(data) && data[i+1] == 0x00 {
			i++
		}
	}
	return out
}
