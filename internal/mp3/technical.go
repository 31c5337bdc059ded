package mp3

import (
	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

const (
	frameSearchWindow = 64 << 10 // bytes searched for the first audio frame
)

// MPEG versions as encoded in the frame header.
const (
	mpeg25 = 0
	mpeg2  = 2
	mpeg1  = 3
)

// bitrates in kbps, by [version is MPEG1][layer-1][index].
var bitrates = [2][3][16]int{
	{ // MPEG2 and 2.5
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
	{ // MPEG1
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
}

// sampleRates in Hz, by version.
var sampleRates = map[uint32][3]int{
	mpeg1:  {44100, 48000, 32000},
	mpeg2:  {22050, 24000, 16000},
	mpeg25: {11025, 12000, 8000},
}

// frameHeader is a decoded MPEG audio frame header.
type frameHeader struct {
	Version    uint32 // mpeg1, mpeg2 or mpeg25
	Layer      int    // 1, 2 or 3
	Bitrate    int    // bits per second
	SampleRate int
	Channels   int
	Padding    bool
}

// parseFrameHeader validates and decodes a 4-byte frame header.
func parseFrameHeader(h uint32) (frameHeader, error) {
	if h&0xFFE00000 != 0xFFE00000 {
		return frameHeader{}, errors.New("invalid frame sync")
	}
	version := (h >> 19) & 0x3
	if version == 1 {
		return frameHeader{}, errors.New("reserved MPEG version")
	}
	layerBits := (h >> 17) & 0x3
	if layerBits == 0 {
		return frameHeader{}, errors.New("reserved layer")
	}
	layer := 4 - int(layerBits)
	bitrateIdx := (h >> 12) & 0xF
	rateIdx := (h >> 10) & 0x3
	if bitrateIdx == 0 || bitrateIdx == 15 {
		return frameHeader{}, errors.New("free or invalid bitrate")
	}
	if rateIdx == 3 {
		return frameHeader{}, errors.New("reserved sample rate")
	}

	v1 := 0
	if version == mpeg1 {
		v1 = 1
	}
	fh := frameHeader{
		Version:    version,
		Layer:      layer,
		Bitrate:    bitrates[v1][layer-1][bitrateIdx] * 1000,
		SampleRate: sampleRates[version][rateIdx],
		Channels:   2,
		Padding:    (h>>9)&0x1 != 0,
	}
	if (h>>6)&0x3 == 3 {
		fh.Channels = 1
	}
	return fh, nil
}

// SamplesPerFrame returns the number of samples one frame decodes to.
func (fh frameHeader) SamplesPerFrame() int {
	switch {
	case fh.Layer == 1:
		return 384
	case fh.Layer == 3 && fh.Version != mpeg1:
		return 576
	}
	return 1152
}

// Len returns the frame length in bytes including the header.
func (fh frameHeader) Len() int {
	pad := 0
	if fh.Padding {
		pad = 1
	}
	if fh.Layer == 1 {
		return (12*fh.Bitrate/fh.SampleRate + pad) * 4
	}
	return fh.SamplesPerFrame()/8*fh.Bitrate/fh.SampleRate + pad
}

// sideInfoLen returns the Layer III side information length, which is
// where a Xing header starts after the frame header.
func (fh frameHeader) sideInfoLen() int {
	switch {
	case fh.Version == mpeg1 && fh.Channels == 2:
		return 32
	case fh.Version == mpeg1, fh.Channels == 2:
		return 17
	}
	return 9
}

// VersionText describes the frame as "MPEG 3 Layer III Version 1".
func (fh frameHeader) VersionText() string {
	layers := [...]string{"", "I", "II", "III"}
	versions := map[uint32]string{mpeg1: "1", mpeg2: "2", mpeg25: "2.5"}
	return "MPEG 3 Layer " + layers[fh.Layer] + " Version " + versions[fh.Version]
}

// findFrame searches from off for the first frame header that is followed
// by a second valid header or by the end of the data.
func findFrame(sr *binary.SafeReader, off, end int64) (int64, frameHeader, error) {
	n := min(end-off, frameSearchWindow)
	if n < 4 {
		return 0, frameHeader{}, errors.New("no audio data")
	}
	buf := make([]byte, n)
	if err := sr.ReadAt(buf, off, "MPEG audio data"); err != nil {
		return 0, frameHeader{}, err
	}
	for i := 0; i+4 <= len(buf); i++ {
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			continue
		}
		fh, err := parseFrameHeader(binary.Decode[uint32](buf[i:i+4], binary.BigEndian))
		if err != nil {
			continue
		}
		next := off + int64(i) + int64(fh.Len())
		if next+4 > end {
			return off + int64(i), fh, nil
		}
		h, err := binary.ReadBE[uint32](sr, next, "next frame header")
		if err != nil {
			continue
		}
		if nfh, err := parseFrameHeader(h); err == nil && nfh.Version == fh.Version && nfh.Layer == fh.Layer {
			return off + int64(i), fh, nil
		}
	}
	return 0, frameHeader{}, errors.Errorf("no MPEG audio frame in %d bytes after offset %d", len(buf), off)
}

// vbrFrames reads the frame count from a Xing, Info or VBRI header in the
// first frame. ok is false when the stream carries none.
func vbrFrames(sr *binary.SafeReader, off int64, fh frameHeader) (frames uint32, ok bool) {
	if fh.Layer != 3 {
		return 0, false
	}
	xing := off + 4 + int64(fh.sideInfoLen())
	buf := make([]byte, 12)
	if err := sr.ReadAt(buf, xing, "Xing header"); err == nil {
		if tag := string(buf[:4]); tag == "Xing" || tag == "Info" {
			// The frame count is present when flag bit 0 is set.
			if binary.Decode[uint32](buf[4:8], binary.BigEndian)&0x1 != 0 {
				return binary.Decode[uint32](buf[8:12], binary.BigEndian), true
			}
			return 0, false
		}
	}
	vbri := make([]byte, 18)
	if err := sr.ReadAt(vbri, off+4+32, "VBRI header"); err == nil && string(vbri[:4]) == "VBRI" {
		return binary.Decode[uint32](vbri[14:18], binary.BigEndian), true
	}
	return 0, false
}

// sampleFrames returns the total number of samples per channel in the
// audio data between off and end: exact for VBR headers, estimated from the
// bitrate otherwise.
func sampleFrames(sr *binary.SafeReader, off, end int64, fh frameHeader) (samples int64, vbr bool) {
	if n, ok := vbrFrames(sr, off, fh); ok {
		return int64(n) * int64(fh.SamplesPerFrame()), true
	}
	if fh.Bitrate == 0 || end <= off {
		return 0, false
	}
	return (end - off) * 8 * int64(fh.SampleRate) / int64(fh.Bitrate), false
}
