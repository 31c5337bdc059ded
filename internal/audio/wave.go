package audio

import (
	"io"
	"strings"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

// WAVE format tags.
const (
	waveFormatPCM        = 0x0001
	waveFormatIEEEFloat  = 0x0003
	waveFormatALaw       = 0x0006
	waveFormatMuLaw      = 0x0007
	waveFormatExtensible = 0xFFFE
)

// infoKeys maps RIFF INFO chunk ids to metadata keys.
var infoKeys = map[string]string{
	"INAM": types.KeyTitle,
	"IART": KeyArtist,
	"ICMT": KeyLogComment,
	"ICRD": types.KeyCreated,
	"IGNR": KeyGenre,
	"ICOP": KeyRights,
	"ISFT": KeyCreatorTool,
	"ISBJ": types.KeySubject,
}

// parseWAVE reads a RIFF/WAVE header up to the data chunk.
func parseWAVE(r io.Reader) (*Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, unsupported(types.FormatWAV, "short RIFF header")
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, unsupported(types.FormatWAV, "missing RIFF/WAVE signature")
	}

	h := &Header{Format: types.FormatWAV, Tags: map[string]string{}}
	cr := newChunkReader(r, binary.LittleEndian, 12)
	haveFmt := false
	var blockAlign uint16
	for {
		id, size, err := cr.next()
		if err != nil {
			if !haveFmt {
				return nil, unsupported(types.FormatWAV, "no fmt chunk before offset %d", cr.off)
			}
			// A header-only file: no data chunk.
			return h, nil
		}
		switch id {
		case "fmt ":
			body, err := cr.body(size)
			if err != nil {
				return nil, &types.UnsupportedFormatError{Err: err, Format: types.FormatWAV, Reason: "read fmt chunk"}
			}
			if blockAlign, err = parseFmt(body, h); err != nil {
				return nil, err
			}
			haveFmt = true
		case "LIST":
			body, err := cr.body(size)
			if err != nil {
				return nil, &types.UnsupportedFormatError{Err: err, Format: types.FormatWAV, Reason: "read LIST chunk"}
			}
			parseInfo(body, h.Tags)
		case "data":
			if !haveFmt {
				return nil, unsupported(types.FormatWAV, "data chunk before fmt chunk")
			}
			if blockAlign > 0 && size != 0xFFFFFFFF {
				h.Frames = int64(size) / int64(blockAlign)
			}
			return h, nil
		default:
			if err := cr.skip(size); err != nil {
				if !haveFmt {
					return nil, unsupported(types.FormatWAV, "truncated %q chunk", id)
				}
				return h, nil
			}
		}
	}
}

// parseFmt decodes a WAVEFORMAT(EX) body and returns the block alignment.
func parseFmt(body []byte, h *Header) (uint16, error) {
	cr := binary.NewChainReader(binary.NewReaderLE(binary.NewBytesReader(body, "fmt chunk"), 0))
	tag := binary.ReadChained[uint16](cr, "format tag")
	channels := binary.ReadChained[uint16](cr, "channels")
	rate := binary.ReadChained[uint32](cr, "sample rate")
	binary.ReadChained[uint32](cr, "byte rate")
	blockAlign := binary.ReadChained[uint16](cr, "block align")
	bits := binary.ReadChained[uint16](cr, "bits per sample")
	if err := cr.Error(); err != nil {
		return 0, &types.UnsupportedFormatError{Err: err, Format: types.FormatWAV, Reason: "short fmt chunk"}
	}

	if tag == waveFormatExtensible {
		// cbSize, validBits, channelMask, then the sub-format GUID whose
		// first two bytes are the real format tag.
		binary.ReadChained[uint16](cr, "extension size")
		binary.ReadChained[uint16](cr, "valid bits")
		binary.ReadChained[uint32](cr, "channel mask")
		tag = binary.ReadChained[uint16](cr, "sub-format")
		if err := cr.Error(); err != nil {
			return 0, &types.UnsupportedFormatError{Err: err, Format: types.FormatWAV, Reason: "short extensible fmt chunk"}
		}
	}

	switch tag {
	case waveFormatPCM:
		if bits <= 8 {
			h.Encoding = EncodingPCMUnsigned
		} else {
			h.Encoding = EncodingPCMSigned
		}
	case waveFormatIEEEFloat:
		h.Encoding = EncodingPCMFloat
	case waveFormatALaw:
		h.Encoding = EncodingALaw
	case waveFormatMuLaw:
		h.Encoding = EncodingULaw
	default:
		return 0, unsupported(types.FormatWAV, "unsupported format tag 0x%04x", tag)
	}
	if channels == 0 || rate == 0 {
		return 0, unsupported(types.FormatWAV, "zero channels or sample rate")
	}

	h.Channels = int(channels)
	h.SampleRate = float64(rate)
	h.Bits = int(bits)
	return blockAlign, nil
}

// parseInfo reads the sub-chunks of a LIST/INFO body. Other LIST types are
// ignored.
func parseInfo(body []byte, tags map[string]string) {
	if len(body) < 4 || string(body[:4]) != "INFO" {
		return
	}
	sr := binary.NewBytesReader(body, "LIST chunk")
	r := binary.NewReaderLE(sr, 4)
	for r.Remaining() >= 8 {
		id, err := r.ReadString(4, "info id")
		if err != nil {
			return
		}
		size, err := binary.ReadValue[uint32](r, "info size")
		if err != nil {
			return
		}
		val, err := r.ReadBytes(int64(size), "info value")
		if err != nil {
			return
		}
		if size%2 == 1 && r.Remaining() > 0 {
			r.Skip(1)
		}
		if key, ok := infoKeys[id]; ok {
			if v := strings.TrimRight(string(val), "\x00 "); v != "" {
				tags[key] = v
			}
		}
	}
}
