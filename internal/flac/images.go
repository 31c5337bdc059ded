package flac

import "github.com/dameikle/tika/internal/binary"

// imageDimensions reads the width and height of JPEG and PNG data.
// Other formats report 0, 0.
func imageDimensions(data []byte, mime string) (int, int) {
	switch mime {
	case "image/jpeg":
		return jpegDimensions(data)
	case "image/png":
		return pngDimensions(data)
	}
	return 0, 0
}

// jpegDimensions walks the marker segments up to the first SOF marker.
func jpegDimensions(data []byte) (int, int) {
	pos := 2
	for pos+9 <= len(data) {
		if data[pos] != 0xFF {
			return 0, 0
		}
		marker := data[pos+1]
		length := int(binary.Decode[uint16](data[pos+2:pos+4], binary.BigEndian))
		// SOF0 to SOF15, excluding DHT, JPG and DAC.
		if marker >= 0xC0 && marker <= 0xCF && marker != 0xC4 && marker != 0xC8 && marker != 0xCC {
			height := int(binary.Decode[uint16](data[pos+5:pos+7], binary.BigEndian))
			width := int(binary.Decode[uint16](data[pos+7:pos+9], binary.BigEndian))
			return width, height
		}
		pos += 2 + length
	}
	return 0, 0
}

// pngDimensions reads the IHDR chunk that follows the 8-byte signature.
func pngDimensions(data []byte) (int, int) {
	if len(data) < 24 || string(data[:8]) != "\x89PNG\r\n\x1a\n" || string(data[12:16]) != "IHDR" {
		return 0, 0
	}
	width := binary.Decode[uint32](data[16:20], binary.BigEndian)
	height := binary.Decode[uint32](data[20:24], binary.BigEndian)
	return int(width), int(height)
}
