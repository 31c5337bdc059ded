package ogg

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

// Opus always decodes at 48 kHz regardless of the input rate.
const opusRate = 48000

var (
	vorbisIdentMagic   = []byte("\x01vorbis")
	vorbisCommentMagic = []byte("\x03vorbis")
	opusHeadMagic      = []byte("OpusHead")
	opusTagsMagic      = []byte("OpusTags")
)

// codec is the decoded identification header of a logical stream.
type codec struct {
	Name         string // "Vorbis" or "Opus"
	Header       audio.Header
	CommentMagic []byte
	PreSkip      int64 // granule samples to discard at the start

	// Informational fields, zero when absent.
	NominalBitrate int
	InputRate      int
	OutputGain     float64 // dB
}

// Apply writes the codec-specific facts into md. The audio header is applied
// separately once the duration is known.
func (c *codec) Apply(md *types.Metadata) {
	md.Set(KeyCompressor, c.Name)
	if c.NominalBitrate > 0 {
		md.Set(KeyNominalBitrate, strconv.Itoa(c.NominalBitrate))
	}
	if c.InputRate > 0 {
		md.Set(KeyInputSampleRate, strconv.Itoa(c.InputRate))
	}
	if c.OutputGain != 0 {
		md.Set(KeyOutputGain, strconv.FormatFloat(c.OutputGain, 'f', 2, 64))
	}
}

// identify parses the first packet of a logical stream.
func identify(pkt []byte) (*codec, error) {
	switch {
	case bytes.HasPrefix(pkt, vorbisIdentMagic):
		return parseVorbisIdentification(pkt)
	case bytes.HasPrefix(pkt, opusHeadMagic):
		return parseOpusHead(pkt)
	}
	n := min(len(pkt), 8)
	return nil, errors.Errorf("unknown or unsupported Ogg codec %q", pkt[:n])
}

// parseVorbisIdentification parses the Vorbis identification header
// (packet type 0x01): version, channels, sample rate and the three bitrate
// hints, all little-endian.
func parseVorbisIdentification(pkt []byte) (*codec, error) {
	cr := binary.NewChainReader(binary.NewReaderLE(binary.NewBytesReader(pkt, "Vorbis identification header"), int64(len(vorbisIdentMagic))))
	version := binary.ReadChained[uint32](cr, "Vorbis version")
	channels := binary.ReadChained[uint8](cr, "channels")
	rate := binary.ReadChained[uint32](cr, "sample rate")
	binary.ReadChained[uint32](cr, "maximum bitrate")
	nominal := binary.ReadChained[uint32](cr, "nominal bitrate")
	binary.ReadChained[uint32](cr, "minimum bitrate")
	if err := cr.Error(); err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, errors.Errorf("unsupported Vorbis version %d", version)
	}
	if channels == 0 || rate == 0 {
		return nil, errors.New("Vorbis identification header has no channels or sample rate")
	}

	c := &codec{
		Name: "Vorbis",
		Header: audio.Header{
			Format:     types.FormatVorbis,
			SampleRate: float64(rate),
			Channels:   int(channels),
		},
		CommentMagic: vorbisCommentMagic,
	}
	// The bitrate fields are signed; a negative hint means "unset".
	if b := int32(nominal); b > 0 {
		c.NominalBitrate = int(b)
	}
	return c, nil
}

// parseOpusHead parses the OpusHead identification header.
func parseOpusHead(pkt []byte) (*codec, error) {
	cr := binary.NewChainReader(binary.NewReaderLE(binary.NewBytesReader(pkt, "OpusHead"), int64(len(opusHeadMagic))))
	version := binary.ReadChained[uint8](cr, "version")
	channels := binary.ReadChained[uint8](cr, "channels")
	preSkip := binary.ReadChained[uint16](cr, "pre-skip")
	inputRate := binary.ReadChained[uint32](cr, "input sample rate")
	gain := binary.ReadChained[uint16](cr, "output gain")
	binary.ReadChained[uint8](cr, "channel mapping family")
	if err := cr.Error(); err != nil {
		return nil, err
	}
	// Only the major version (high nibble) must match.
	if version>>4 != 0 {
		return nil, errors.Errorf("unsupported Opus version %d", version)
	}
	if channels == 0 {
		return nil, errors.New("OpusHead has no channels")
	}

	return &codec{
		Name: "Opus",
		Header: audio.Header{
			Format:     types.FormatOpus,
			SampleRate: opusRate,
			Channels:   int(channels),
		},
		CommentMagic: opusTagsMagic,
		PreSkip:      int64(preSkip),
		InputRate:    int(inputRate),
		OutputGain:   float64(int16(gain)) / 256,
	}, nil
}
