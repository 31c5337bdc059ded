package audio

import (
	"io"
	"strings"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

// aifcCompression maps AIFC compression types to encodings.
var aifcCompression = map[string]string{
	"NONE": EncodingPCMSigned,
	"twos": EncodingPCMSigned,
	"sowt": EncodingPCMSigned,
	"raw ": EncodingPCMUnsigned,
	"fl32": EncodingPCMFloat,
	"FL32": EncodingPCMFloat,
	"fl64": EncodingPCMFloat,
	"FL64": EncodingPCMFloat,
	"ulaw": EncodingULaw,
	"ULAW": EncodingULaw,
	"alaw": EncodingALaw,
	"ALAW": EncodingALaw,
}

// aiffTextKeys maps IFF text chunks to metadata keys.
var aiffTextKeys = map[string]string{
	"NAME": types.KeyTitle,
	"AUTH": types.KeyCreator,
	"(c) ": KeyRights,
	"ANNO": types.KeyDescription,
}

// parseAIFF reads a FORM/AIFF or FORM/AIFC header up to the sound data.
func parseAIFF(r io.Reader) (*Header, error) {
	var form [12]byte
	if _, err := io.ReadFull(r, form[:]); err != nil {
		return nil, unsupported(types.FormatAIFF, "short FORM header")
	}
	kind := string(form[8:12])
	if string(form[0:4]) != "FORM" || (kind != "AIFF" && kind != "AIFC") {
		return nil, unsupported(types.FormatAIFF, "missing FORM/AIFF signature")
	}

	h := &Header{Format: types.FormatAIFF, Tags: map[string]string{}}
	cr := newChunkReader(r, binary.BigEndian, 12)
	haveComm := false
chunks:
	for {
		id, size, err := cr.next()
		if err != nil {
			break
		}
		switch id {
		case "COMM":
			body, err := cr.body(size)
			if err != nil {
				return nil, &types.UnsupportedFormatError{Err: err, Format: types.FormatAIFF, Reason: "read COMM chunk"}
			}
			if err := parseComm(body, kind == "AIFC", h); err != nil {
				return nil, err
			}
			haveComm = true
		case "NAME", "AUTH", "(c) ", "ANNO":
			body, err := cr.body(size)
			if err != nil {
				break chunks
			}
			if v := strings.TrimRight(string(body), "\x00 "); v != "" {
				h.Tags[aiffTextKeys[id]] = v
			}
		case "SSND":
			if !haveComm {
				return nil, unsupported(types.FormatAIFF, "sound data before COMM chunk")
			}
			return h, nil
		default:
			if err := cr.skip(size); err != nil {
				break chunks
			}
		}
	}
	if !haveComm {
		return nil, unsupported(types.FormatAIFF, "no COMM chunk")
	}
	return h, nil
}

// parseComm decodes the common chunk: channels, frames, sample size, an
// 80-bit sample rate and, for AIFC, the compression type.
func parseComm(body []byte, aifc bool, h *Header) error {
	cr := binary.NewChainReader(binary.NewReader(binary.NewBytesReader(body, "COMM chunk"), 0))
	channels := binary.ReadChained[uint16](cr, "channels")
	frames := binary.ReadChained[uint32](cr, "sample frames")
	bits := binary.ReadChained[uint16](cr, "sample size")
	rate := binary.Extended(cr.Bytes(10, "sample rate"))
	compression := "NONE"
	if aifc {
		compression = cr.String(4, "compression type")
	}
	if err := cr.Error(); err != nil {
		return &types.UnsupportedFormatError{Err: err, Format: types.FormatAIFF, Reason: "short COMM chunk"}
	}

	enc, ok := aifcCompression[compression]
	if !ok {
		return unsupported(types.FormatAIFF, "unsupported compression %q", compression)
	}
	if channels == 0 || rate <= 0 {
		return unsupported(types.FormatAIFF, "zero channels or sample rate")
	}
	h.Encoding = enc
	h.Channels = int(channels)
	h.Bits = int(bits)
	h.SampleRate = rate
	h.Frames = int64(frames)
	return nil
}
