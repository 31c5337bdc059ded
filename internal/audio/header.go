// Package audio extracts the sampled-audio header of WAV, AIFF/AIFC and
// Sun AU streams.
//
// Only the header is read. Sample data is never decoded, and a stream whose
// header cannot be interpreted produces no content at all.
package audio

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dameikle/tika/internal/types"
)

// Sample encodings recorded under the "encoding" key.
const (
	EncodingPCMSigned   = "PCM_SIGNED"
	EncodingPCMUnsigned = "PCM_UNSIGNED"
	EncodingPCMFloat    = "PCM_FLOAT"
	EncodingULaw        = "ULAW"
	EncodingALaw        = "ALAW"
)

// Metadata keys written by this package.
const (
	KeyChannels         = "channels"
	KeySampleRate       = "samplerate"
	KeyBits             = "bits"
	KeyEncoding         = "encoding"
	KeyAudioSampleRate  = "xmpDM:audioSampleRate"
	KeyAudioSampleType  = "xmpDM:audioSampleType"
	KeyAudioChannelType = "xmpDM:audioChannelType"
	KeyDuration         = "xmpDM:duration"
	KeyArtist           = "xmpDM:artist"
	KeyGenre            = "xmpDM:genre"
	KeyLogComment       = "xmpDM:logComment"
	KeyRights           = "dc:rights"
	KeyCreatorTool      = "xmp:CreatorTool"
)

// Header is the decoded audio format of a stream.
type Header struct {
	Format     types.Format
	Encoding   string
	Tags       map[string]string
	SampleRate float64
	Channels   int
	Bits       int
	Frames     int64 // total sample frames, 0 when unknown
}

// Duration returns the playback length, or 0 when unknown.
func (h *Header) Duration() time.Duration {
	if h.Frames <= 0 || h.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(h.Frames) / h.SampleRate * float64(time.Second))
}

// Apply writes the header into md.
func (h *Header) Apply(md *types.Metadata) {
	md.Set(types.KeyContentType, string(h.Format))
	if h.Channels > 0 {
		md.Set(KeyChannels, strconv.Itoa(h.Channels))
		if ct := channelType(h.Channels); ct != "" {
			md.Set(KeyAudioChannelType, ct)
		}
	}
	if h.SampleRate > 0 {
		md.Set(KeySampleRate, floatText(h.SampleRate))
		md.Set(KeyAudioSampleRate, strconv.Itoa(int(h.SampleRate)))
	}
	if h.Bits > 0 {
		md.Set(KeyBits, strconv.Itoa(h.Bits))
		switch h.Bits {
		case 8:
			md.Set(KeyAudioSampleType, "8Int")
		case 16:
			md.Set(KeyAudioSampleType, "16Int")
		case 24:
			md.Set(KeyAudioSampleType, "24Int")
		case 32:
			if h.Encoding != EncodingPCMFloat {
				md.Set(KeyAudioSampleType, "32Int")
			} else {
				md.Set(KeyAudioSampleType, "32Float")
			}
		}
	}
	if h.Encoding != "" {
		md.Set(KeyEncoding, h.Encoding)
	}
	if d := h.Duration(); d > 0 {
		md.Set(KeyDuration, DurationText(d))
	}
	for _, k := range sortedKeys(h.Tags) {
		md.Set(k, h.Tags[k])
	}
}

// DurationText renders d in seconds rounded to the millisecond.
func DurationText(d time.Duration) string {
	return strconv.FormatFloat(math.Round(d.Seconds()*1000)/1000, 'f', -1, 64)
}

// floatText renders a sample rate always with a fractional part: 44100
// becomes "44100.0".
func floatText(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 32)
	}
	return strconv.FormatFloat(v, 'f', -1, 32)
}

// channelType maps a channel count to its XMP audioChannelType.
func channelType(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	case 16:
		return "16 Channel"
	default:
		return "Other"
	}
}

func unsupported(format types.Format, reason string, args ...any) error {
	return &types.UnsupportedFormatError{Format: format, Reason: fmt.Sprintf(reason, args...)}
}
