package audio

import (
	"context"

	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "audio.Extractor"

// Extractor reads sampled-audio headers.
type Extractor struct{}

// New creates an audio extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(
		types.FormatWAV, "audio/x-wav", "audio/wav",
		types.FormatAIFF, "audio/aiff",
		types.FormatAU,
	)
}

// Extract implements types.Extractor. The header is parsed before any event
// is emitted, so an unreadable header leaves the node without content.
func (e *Extractor) Extract(_ context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	head, err := s.Peek(4)
	if err != nil && len(head) < 4 {
		return unsupported("", "stream too short for an audio header")
	}

	var hdr *Header
	switch string(head) {
	case "RIFF":
		hdr, err = parseWAVE(s)
	case "FORM":
		hdr, err = parseAIFF(s)
	case ".snd":
		hdr, err = parseAU(s)
	default:
		return unsupported(types.Format(md.Get(types.KeyContentType)), "unrecognized audio signature %q", head)
	}
	if err != nil {
		return err
	}

	hdr.Apply(md)
	ec.Logger().Debug("audio header",
		zap.Stringer("format", hdr.Format),
		zap.Int("channels", hdr.Channels),
		zap.Float64("sampleRate", hdr.SampleRate),
		zap.String("encoding", hdr.Encoding))

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	return x.EndDocument()
}
