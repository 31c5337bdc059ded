// Package detect names the format of a stream from its leading bytes and
// the hints in its metadata record.
package detect

import (
	"bytes"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/types"
)

// sniffLen is how much of the stream detection looks at.
const sniffLen = 8 << 10

// rule matches a format by its leading bytes.
type rule struct {
	format types.Format
	match  func(head []byte) bool
}

// rules are checked in order before the generic signature table. They cover
// formats the table misses or names differently from the registry.
var rules = []rule{
	{types.FormatFLAC, prefix("fLaC")},
	{types.FormatOgg, prefix("OggS")},
	{types.FormatMP3, prefix("ID3")},
	{types.FormatM4A, func(h []byte) bool {
		// iTunes audio brands; other ftyp brands are left to the table.
		if len(h) < 12 || string(h[4:8]) != "ftyp" {
			return false
		}
		brand := string(h[8:12])
		return brand == "M4A " || brand == "M4B " || brand == "M4P "
	}},
	{types.FormatWAV, func(h []byte) bool {
		return len(h) >= 12 && string(h[0:4]) == "RIFF" && string(h[8:12]) == "WAVE"
	}},
	{types.FormatAIFF, func(h []byte) bool {
		return len(h) >= 12 && string(h[0:4]) == "FORM" &&
			(string(h[8:12]) == "AIFF" || string(h[8:12]) == "AIFC")
	}},
	{types.FormatAU, prefix(".snd")},
	{types.FormatOLE, prefix("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1")},
	{types.FormatMbox, func(h []byte) bool {
		// A "From " separator line followed by message headers.
		return bytes.HasPrefix(h, []byte("From ")) && containsHeader(h)
	}},
	{types.FormatTMX, func(h []byte) bool {
		return looksLikeXML(h) && bytes.Contains(h, []byte("<tmx"))
	}},
	{types.FormatSSA, func(h []byte) bool {
		return bytes.HasPrefix(bytes.TrimLeft(h, "\xEF\xBB\xBF \r\n"), []byte("[Script Info]"))
	}},
}

// aliases maps signature table names onto the names extractors register.
var aliases = map[types.Format]types.Format{
	"audio/wav":                     types.FormatWAV,
	"audio/x-wav":                   types.FormatWAV,
	"audio/aiff":                    types.FormatAIFF,
	"audio/flac":                    types.FormatFLAC,
	"application/ogg":               types.FormatOgg,
	"audio/mp3":                     types.FormatMP3,
	"audio/x-mpeg":                  types.FormatMP3,
	"audio/x-m4a":                   types.FormatM4A,
	"audio/m4a":                     types.FormatM4A,
	"text/xml":                      types.FormatXML,
	"application/x-ole-storage":     types.FormatOLE,
	"application/msword":            types.FormatOLE,
	"application/vnd.ms-excel":      types.FormatOLE,
	"application/vnd.ms-outlook":    types.FormatOLE,
	"application/vnd.ms-powerpoint": types.FormatOLE,
	"application/x-rar":             types.FormatRar,
	"application/vnd.rar":           types.FormatRar,
	"application/x-gzip":            types.FormatGzip,
	"application/x-zstd":            types.FormatZstd,
	"application/x-zip-compressed":  types.FormatZip,
}

// Detector is the default detection chain: built-in magic rules, then the
// signature table, then the resourceName extension, then a declared
// Content-Type, falling back to application/octet-stream.
type Detector struct{}

// New creates the default detector.
func New() *Detector {
	return &Detector{}
}

// Detect implements types.Detector. It peeks at the stream and never
// consumes it.
func (d *Detector) Detect(s *types.Stream, md *types.Metadata) (types.Format, error) {
	head, err := s.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "peek stream header")
	}

	for _, r := range rules {
		if r.match(head) {
			return r.format, nil
		}
	}

	var sniffed types.Format
	if len(head) > 0 {
		sniffed = Normalize(types.Format(mimetype.Detect(head).String()))
	}
	if !generic(sniffed) {
		return sniffed, nil
	}

	if name := md.Get(types.KeyResourceName); name != "" {
		if f := types.FormatForName(name); !f.IsZero() && !generic(f) {
			return Normalize(f), nil
		}
	}
	if declared := types.Format(md.Get(types.KeyContentType)); !declared.IsZero() && !generic(declared) {
		return Normalize(declared), nil
	}
	if !sniffed.IsZero() {
		return sniffed, nil
	}
	return types.FormatOctetStream, nil
}

// Normalize maps alternative names for a format to the registered name,
// keeping parameters.
func Normalize(f types.Format) types.Format {
	target, ok := aliases[f.Base()]
	if !ok {
		return f
	}
	if i := strings.IndexByte(string(f), ';'); i >= 0 {
		return target + f[i:]
	}
	return target
}

// generic reports whether f says nothing beyond "bytes" or "some text".
func generic(f types.Format) bool {
	switch f.Base() {
	case "", types.FormatOctetStream, types.FormatText:
		return true
	}
	return false
}

func prefix(p string) func([]byte) bool {
	return func(h []byte) bool { return bytes.HasPrefix(h, []byte(p)) }
}

func looksLikeXML(h []byte) bool {
	h = bytes.TrimLeft(h, "\xEF\xBB\xBF \t\r\n")
	return bytes.HasPrefix(h, []byte("<"))
}

// containsHeader reports whether a line after the first looks like an
// RFC 822 header.
func containsHeader(h []byte) bool {
	for _, hdr := range []string{"\nFrom:", "\nReceived:", "\nReturn-Path:", "\nSubject:", "\nDate:", "\nMessage-ID:", "\nTo:"} {
		if bytes.Contains(h, []byte(hdr)) {
			return true
		}
	}
	return false
}
