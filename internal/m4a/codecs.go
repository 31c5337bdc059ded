package m4a

import (
	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

// codecNames maps sample entry formats to readable codec names.
var codecNames = map[string]string{
	"mp4a": "AAC",
	"alac": "ALAC",
	"ac-3": "AC-3",
	"ec-3": "E-AC-3",
	"Opus": "Opus",
	"fLaC": "FLAC",
	".mp3": "MP3",
	"lpcm": "PCM",
	"sowt": "PCM",
	"twos": "PCM",
}

// aacProfiles names MPEG-4 audio object types.
var aacProfiles = map[int]string{
	1:  "AAC Main",
	2:  "AAC LC",
	3:  "AAC SSR",
	4:  "AAC LTP",
	5:  "HE-AAC",
	29: "HE-AAC v2",
	42: "xHE-AAC",
}

// MPEG-4 descriptor tags.
const (
	tagESDescriptor      = 0x03
	tagDecoderConfig     = 0x04
	tagDecoderSpecific   = 0x05
	objectTypeMPEG4Audio = 0x40
)

// esdsInfo is what the elementary stream descriptor says about the codec.
type esdsInfo struct {
	ObjectType uint8 // MPEG-4 objectTypeIndication
	Profile    string
	MaxBitrate uint32
	AvgBitrate uint32
}

// parseESDescriptors reads an esds atom body (after version and flags).
func parseESDescriptors(data []byte) (esdsInfo, error) {
	var info esdsInfo
	r := binary.NewReader(binary.NewBytesReader(data, "esds"), 0)
	for r.Remaining() > 0 {
		tag, err := binary.ReadValue[uint8](r, "descriptor tag")
		if err != nil {
			return info, err
		}
		size, err := descriptorSize(r)
		if err != nil {
			return info, err
		}
		end := r.Offset() + int64(size)
		switch tag {
		case tagESDescriptor:
			r.Skip(2)
			flags, err := binary.ReadValue[uint8](r, "ES flags")
			if err != nil {
				return info, err
			}
			if flags&0x80 != 0 {
				r.Skip(2)
			}
			if flags&0x40 != 0 {
				n, err := binary.ReadValue[uint8](r, "URL length")
				if err != nil {
					return info, err
				}
				r.Skip(int64(n))
			}
			if flags&0x20 != 0 {
				r.Skip(2)
			}
			// Nested descriptors follow.
			continue
		case tagDecoderConfig:
			cr := binary.NewChainReader(r)
			info.ObjectType = binary.ReadChained[uint8](cr, "object type")
			cr.Bytes(4, "stream type and buffer size")
			info.MaxBitrate = binary.ReadChained[uint32](cr, "max bitrate")
			info.AvgBitrate = binary.ReadChained[uint32](cr, "average bitrate")
			if err := cr.Error(); err != nil {
				return info, err
			}
			// DecoderSpecificInfo is nested.
			continue
		case tagDecoderSpecific:
			if info.ObjectType == objectTypeMPEG4Audio && size > 0 {
				b, err := binary.ReadValue[uint8](r, "audio object type")
				if err != nil {
					return info, err
				}
				aot := int(b >> 3)
				if aot == 31 && size > 1 {
					next, err := binary.ReadValue[uint8](r, "extended object type")
					if err != nil {
						return info, err
					}
					aot = 32 + (int(b&0x07)<<3 | int(next>>5))
				}
				info.Profile = aacProfiles[aot]
			}
		}
		if end < r.Offset() {
			return info, errors.Errorf("descriptor 0x%02x overran its length", tag)
		}
		r.Skip(end - r.Offset())
	}
	return info, nil
}

// descriptorSize reads the 7-bits-per-byte descriptor length.
func descriptorSize(r *binary.Reader) (uint32, error) {
	var size uint32
	for range 4 {
		b, err := binary.ReadValue[uint8](r, "descriptor size")
		if err != nil {
			return 0, err
		}
		size = size<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return size, nil
		}
	}
	return size, nil
}
