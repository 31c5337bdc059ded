package audio

import (
	"io"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

const auUnknownSize = 0xFFFFFFFF

// auEncodings maps Sun AU encoding codes to an encoding and sample size.
var auEncodings = map[uint32]struct {
	name string
	bits int
}{
	1:  {EncodingULaw, 8},
	2:  {EncodingPCMSigned, 8},
	3:  {EncodingPCMSigned, 16},
	4:  {EncodingPCMSigned, 24},
	5:  {EncodingPCMSigned, 32},
	6:  {EncodingPCMFloat, 32},
	7:  {EncodingPCMFloat, 64},
	27: {EncodingALaw, 8},
}

// parseAU reads the 24-byte Sun AU header.
func parseAU(r io.Reader) (*Header, error) {
	buf := make([]byte, 24)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unsupported(types.FormatAU, "short header")
	}
	cr := binary.NewChainReader(binary.NewReader(binary.NewBytesReader(buf, "AU header"), 0))
	magic := cr.String(4, "magic")
	offset := binary.ReadChained[uint32](cr, "data offset")
	size := binary.ReadChained[uint32](cr, "data size")
	code := binary.ReadChained[uint32](cr, "encoding")
	rate := binary.ReadChained[uint32](cr, "sample rate")
	channels := binary.ReadChained[uint32](cr, "channels")
	if err := cr.Error(); err != nil {
		return nil, &types.UnsupportedFormatError{Err: err, Format: types.FormatAU, Reason: "short header"}
	}
	if magic != ".snd" {
		return nil, unsupported(types.FormatAU, "missing .snd signature")
	}
	if offset < 24 {
		return nil, unsupported(types.FormatAU, "data offset %d inside header", offset)
	}
	enc, ok := auEncodings[code]
	if !ok {
		return nil, unsupported(types.FormatAU, "unsupported encoding %d", code)
	}
	if channels == 0 || rate == 0 {
		return nil, unsupported(types.FormatAU, "zero channels or sample rate")
	}

	h := &Header{
		Format:     types.FormatAU,
		Encoding:   enc.name,
		Bits:       enc.bits,
		Channels:   int(channels),
		SampleRate: float64(rate),
		Tags:       map[string]string{},
	}
	if size != auUnknownSize {
		h.Frames = int64(size) / int64(enc.bits/8*int(channels))
	}
	return h, nil
}
