package flac

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

// PictureLinkMIME marks a PICTURE block whose data is a URL, not an image.
const PictureLinkMIME = "-->"

// maxPictureField bounds the MIME and description strings of a PICTURE block.
const maxPictureField = 64 << 10

// streamInfo is the decoded STREAMINFO block.
type streamInfo struct {
	Header audio.Header
	MD5    string // hex, empty when the encoder left it unset
}

// parseStreamInfo decodes the mandatory 34-byte STREAMINFO block.
func parseStreamInfo(data []byte) (*streamInfo, error) {
	if len(data) != 34 {
		return nil, &types.UnsupportedFormatError{
			Format: types.FormatFLAC,
			Reason: fmt.Sprintf("invalid STREAMINFO size: %d (expected 34)", len(data)),
		}
	}

	// Bytes 10-17 pack sample rate (20 bits), channels-1 (3 bits),
	// bits per sample-1 (5 bits) and total samples (36 bits).
	packed := binary.Decode[uint64](data[10:18], binary.BigEndian)
	sampleRate := (packed >> 44) & 0xFFFFF
	channels := ((packed >> 41) & 0x7) + 1
	bitsPerSample := ((packed >> 36) & 0x1F) + 1
	totalSamples := packed & 0xFFFFFFFFF

	if sampleRate == 0 {
		return nil, &types.UnsupportedFormatError{Format: types.FormatFLAC, Reason: "zero sample rate"}
	}

	info := &streamInfo{Header: audio.Header{
		Format:     types.FormatFLAC,
		SampleRate: float64(sampleRate),
		Channels:   int(channels),
		Bits:       int(bitsPerSample),
		Frames:     int64(totalSamples),
	}}
	sum := data[18:34]
	for _, b := range sum {
		if b != 0 {
			info.MD5 = hex.EncodeToString(sum)
			break
		}
	}
	return info, nil
}

// Picture is a decoded PICTURE block.
type Picture struct {
	Type        uint32
	MIMEType    string
	Description string
	Width       int
	Height      int
	Data        []byte
}

// pictureTypes names the ID3v2 APIC picture types FLAC reuses.
var pictureTypes = []string{
	"Other",
	"File icon",
	"Other file icon",
	"Front cover",
	"Back cover",
	"Leaflet page",
	"Media",
	"Lead artist",
	"Artist",
	"Conductor",
	"Band",
	"Composer",
	"Lyricist",
	"Recording location",
	"During recording",
	"During performance",
	"Video capture",
	"A bright colored fish",
	"Illustration",
	"Band logotype",
	"Publisher logotype",
}

// TypeName returns the picture type's name, "Other" for unknown codes.
func (p *Picture) TypeName() string {
	if int(p.Type) < len(pictureTypes) {
		return pictureTypes[p.Type]
	}
	return pictureTypes[0]
}

// ParsePicture decodes a PICTURE block. All integers are big-endian.
func ParsePicture(data []byte) (*Picture, error) {
	cr := binary.NewChainReader(binary.NewReader(binary.NewBytesReader(data, "PICTURE block"), 0))
	p := &Picture{}
	p.Type = binary.ReadChained[uint32](cr, "picture type")
	mimeLen := binary.ReadChained[uint32](cr, "MIME type length")
	if mimeLen > maxPictureField {
		return nil, errors.Errorf("MIME type length %d too large", mimeLen)
	}
	p.MIMEType = strings.ToLower(cr.String(int(mimeLen), "MIME type"))
	descLen := binary.ReadChained[uint32](cr, "description length")
	if descLen > maxPictureField {
		return nil, errors.Errorf("description length %d too large", descLen)
	}
	p.Description = cr.String(int(descLen), "description")
	p.Width = int(binary.ReadChained[uint32](cr, "width"))
	p.Height = int(binary.ReadChained[uint32](cr, "height"))
	binary.ReadChained[uint32](cr, "color depth")
	binary.ReadChained[uint32](cr, "indexed colors")
	dataLen := binary.ReadChained[uint32](cr, "picture data length")
	p.Data = cr.Bytes(int64(dataLen), "picture data")
	if err := cr.Error(); err != nil {
		return nil, err
	}
	return p, nil
}
